package courier

import "sync"

// MessageHandler receives a direct message. Calling reply.Send routes a
// response back to the sender under the message's correlation id; a handler
// that does not reply simply ignores it.
type MessageHandler func(sender string, payload []byte, reply Reply)

// BroadcastHandler receives a namespace-wide broadcast.
type BroadcastHandler func(kind, sender string, payload []byte)

// RoomHandler receives a message sent to a room the client listens to.
type RoomHandler func(sender string, payload []byte)

// handlerRegistry is the client's owned collection of event handlers. Go
// functions are not comparable, so registration hands back an integer id and
// removal goes through the id (surfaced to callers as a remove func).
type handlerRegistry struct {
	mu        sync.RWMutex
	nextID    int
	message   map[int]MessageHandler
	broadcast map[int]BroadcastHandler
	rooms     map[string]map[int]RoomHandler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{
		message:   make(map[int]MessageHandler),
		broadcast: make(map[int]BroadcastHandler),
		rooms:     make(map[string]map[int]RoomHandler),
	}
}

func (r *handlerRegistry) addMessage(h MessageHandler) (id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.message[r.nextID] = h
	return r.nextID
}

func (r *handlerRegistry) removeMessage(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.message, id)
}

func (r *handlerRegistry) hasMessage() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.message) > 0
}

func (r *handlerRegistry) emitMessage(sender string, payload []byte, reply Reply) {
	for _, h := range r.messageSnapshot() {
		h(sender, payload, reply)
	}
}

func (r *handlerRegistry) messageSnapshot() []MessageHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MessageHandler, 0, len(r.message))
	for _, h := range r.message {
		out = append(out, h)
	}
	return out
}

func (r *handlerRegistry) addBroadcast(h BroadcastHandler) (id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.broadcast[r.nextID] = h
	return r.nextID
}

func (r *handlerRegistry) removeBroadcast(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.broadcast, id)
}

func (r *handlerRegistry) hasBroadcast() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.broadcast) > 0
}

func (r *handlerRegistry) emitBroadcast(kind, sender string, payload []byte) {
	r.mu.RLock()
	snapshot := make([]BroadcastHandler, 0, len(r.broadcast))
	for _, h := range r.broadcast {
		snapshot = append(snapshot, h)
	}
	r.mu.RUnlock()

	for _, h := range snapshot {
		h(kind, sender, payload)
	}
}

func (r *handlerRegistry) addRoom(room string, h RoomHandler) (id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[int]RoomHandler)
	}
	r.rooms[room][r.nextID] = h
	return r.nextID
}

// removeRoom drops one handler and reports how many remain for the room.
func (r *handlerRegistry) removeRoom(room string, id int) (remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handlers, ok := r.rooms[room]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(r.rooms, room)
		}
		return len(handlers)
	}
	return 0
}

// dropRoom removes every handler registered for the room.
func (r *handlerRegistry) dropRoom(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, room)
}

func (r *handlerRegistry) emitRoom(room, sender string, payload []byte) {
	r.mu.RLock()
	snapshot := make([]RoomHandler, 0, len(r.rooms[room]))
	for _, h := range r.rooms[room] {
		snapshot = append(snapshot, h)
	}
	r.mu.RUnlock()

	for _, h := range snapshot {
		h(sender, payload)
	}
}
