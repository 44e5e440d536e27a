package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SWAI-Ltd/Sealbox/client"
	"github.com/SWAI-Ltd/Sealbox/internal/crypto"
	"github.com/SWAI-Ltd/Sealbox/internal/discovery"
)

func main() {
	relayAddr := flag.String("relay", "localhost:6131", "relay address")
	discover := flag.Bool("discover", false, "find a relay via mDNS instead of -relay")
	accountID := flag.String("id", "", "account id")
	username := flag.String("username", "", "display name (fixed at first registration)")
	mode := flag.String("mode", "recv", "recv | send | getkey")
	to := flag.String("to", "", "recipient account id (send mode)")
	text := flag.String("text", "hello from sealbox", "message text (send mode)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	addr := *relayAddr
	if *discover {
		found, err := findRelay(ctx, 3*time.Second)
		if err != nil {
			slog.Error("relay discovery failed", "err", err)
			os.Exit(1)
		}
		addr = found
		slog.Info("discovered relay", "addr", addr)
	}

	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		slog.Error("key generation failed", "err", err)
		os.Exit(1)
	}

	c, err := client.Dial(ctx, client.Config{RelayAddr: addr})
	if err != nil {
		slog.Error("failed to connect to relay", "err", err)
		os.Exit(1)
	}
	defer c.Close()

	switch *mode {
	case "recv":
		if *accountID == "" {
			fmt.Println("recv mode needs -id")
			os.Exit(1)
		}
		online, err := c.Register(ctx, *accountID, keys.Public[:], *username)
		if err != nil {
			slog.Error("register failed", "err", err)
			os.Exit(1)
		}
		fmt.Println("PublicKey:", crypto.EncodeKey(keys.Public))
		slog.Info("registered", "id", *accountID, "known_accounts", online)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-c.Messages():
				if !ok {
					return
				}
				printMessage(ctx, c, m, keys)
			}
		}

	case "send":
		if *accountID == "" || *to == "" {
			fmt.Println("send mode needs -id and -to")
			os.Exit(1)
		}
		key, err := c.GetPublicKey(ctx, *to)
		if err != nil {
			slog.Error("recipient key lookup failed", "err", err)
			os.Exit(1)
		}
		var pub [crypto.PublicKeySize]byte
		if len(key.PublicKey) != crypto.PublicKeySize {
			slog.Error("recipient key has unexpected size", "size", len(key.PublicKey))
			os.Exit(1)
		}
		copy(pub[:], key.PublicKey)
		sealed, err := crypto.Seal([]byte(*text), &pub, keys.Private)
		if err != nil {
			slog.Error("seal failed", "err", err)
			os.Exit(1)
		}
		res, err := c.Send(ctx, *accountID, *to, sealed)
		if err != nil {
			slog.Error("send failed", "err", err)
			os.Exit(1)
		}
		status := "delivered"
		if res.Queued {
			status = "queued"
		}
		slog.Info("message sent", "id", res.MessageID, "status", status)

	case "getkey":
		if *to == "" {
			fmt.Println("getkey mode needs -to")
			os.Exit(1)
		}
		key, err := c.GetPublicKey(ctx, *to)
		if err != nil {
			slog.Error("key lookup failed", "err", err)
			os.Exit(1)
		}
		fmt.Printf("%s (%s): %x\n", key.AccountID, key.Username, key.PublicKey)

	default:
		fmt.Println("usage: client -mode recv|send|getkey [-relay localhost:6131] [-id alice] [-to bob]")
	}
}

// printMessage opens an inbound message using the sender's registered key.
// A payload sealed for a different key is reported, not decrypted.
func printMessage(ctx context.Context, c *client.Client, m client.Message, keys *crypto.KeyPair) {
	stamp := m.Timestamp.Format("15:04:05")
	senderKey, err := c.GetPublicKey(ctx, m.From)
	if err != nil || len(senderKey.PublicKey) != crypto.PublicKeySize {
		fmt.Printf("[%s] from=%s id=%s: %d bytes (sender key unavailable)\n", stamp, m.From, m.ID, len(m.Payload))
		return
	}
	var pub [crypto.PublicKeySize]byte
	copy(pub[:], senderKey.PublicKey)
	plain, ok := crypto.Open(m.Payload, &pub, keys.Private)
	if !ok {
		fmt.Printf("[%s] from=%s id=%s: %d bytes (sealed for another key)\n", stamp, m.From, m.ID, len(m.Payload))
		return
	}
	fmt.Printf("[%s] from=%s: %s\n", stamp, m.From, plain)
}

func findRelay(ctx context.Context, wait time.Duration) (string, error) {
	found := make(chan string, 1)
	b, err := discovery.Browse(func(r discovery.Relay) {
		select {
		case found <- r.Addr:
		default:
		}
	})
	if err != nil {
		return "", err
	}
	defer b.Close()
	select {
	case addr := <-found:
		return addr, nil
	case <-time.After(wait):
		return "", fmt.Errorf("no relay found within %s", wait)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
