package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nfrund/courier"
	"github.com/nfrund/courier/internal/logging"
	"github.com/nfrund/courier/pubsub"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run two clients through a ping/pong, room, and broadcast exchange",
	RunE:  runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

// demoConfig is read from the environment (optionally via a .env file).
type demoConfig struct {
	Namespace string
	Timeout   time.Duration
}

func loadDemoConfig() demoConfig {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on environment variables")
	}

	cfg := demoConfig{
		Namespace: os.Getenv("COURIER_NAMESPACE"),
		Timeout:   2 * time.Second,
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "demo"
	}
	if ms := os.Getenv("COURIER_TIMEOUT_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil && n > 0 {
			cfg.Timeout = time.Duration(n) * time.Millisecond
		} else {
			slog.Warn("ignoring invalid COURIER_TIMEOUT_MS", "value", ms)
		}
	}
	return cfg
}

func runDemo(cmd *cobra.Command, args []string) error {
	logging.New()
	cfg := loadDemoConfig()

	transport := pubsub.NewGoChannelTransport()
	defer transport.Close()

	alice, err := courier.New(transport, courier.Options{
		Namespace:      cfg.Namespace,
		ClientID:       "alice",
		MessageTimeout: cfg.Timeout,
	})
	if err != nil {
		return err
	}
	defer alice.Close()

	bob, err := courier.New(transport, courier.Options{
		Namespace:      cfg.Namespace,
		ClientID:       "bob",
		MessageTimeout: cfg.Timeout,
	})
	if err != nil {
		return err
	}
	defer bob.Close()

	// Bob answers direct messages and watches the lobby and broadcasts.
	bob.OnMessage(func(sender string, payload []byte, reply courier.Reply) {
		fmt.Printf("bob   <- %s: %q\n", sender, payload)
		if err := reply.Send([]byte("pong")); err != nil {
			slog.Error("reply failed", "error", err)
		}
	})

	roomSeen := make(chan struct{}, 1)
	if _, err := bob.ListenToRoom("lobby", func(sender string, payload []byte) {
		fmt.Printf("lobby <- %s: %q\n", sender, payload)
		roomSeen <- struct{}{}
	}); err != nil {
		return err
	}

	broadcastSeen := make(chan struct{}, 1)
	bob.OnBroadcast(func(kind, sender string, payload []byte) {
		fmt.Printf("cast  <- %s [%s]: %q\n", sender, kind, payload)
		broadcastSeen <- struct{}{}
	})

	// Alice pings Bob and waits for the correlated reply.
	replied := make(chan struct{}, 1)
	err = alice.SendMessage("bob", []byte("ping"), func(err error, sender string, payload []byte) {
		if err != nil {
			fmt.Printf("alice <- no reply: %v\n", err)
		} else {
			fmt.Printf("alice <- %s: %q\n", sender, payload)
		}
		replied <- struct{}{}
	})
	if err != nil {
		return err
	}

	if err := alice.SendRoomMessage("lobby", []byte("hello, room")); err != nil {
		return err
	}
	if err := alice.Broadcast("announce", []byte("demo finished")); err != nil {
		return err
	}

	for _, done := range []chan struct{}{replied, roomSeen, broadcastSeen} {
		select {
		case <-done:
		case <-time.After(cfg.Timeout + time.Second):
			return fmt.Errorf("demo timed out waiting for an event")
		}
	}
	return nil
}
