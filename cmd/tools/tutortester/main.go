package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/cycore-edu/cycore/backend/internal/config"
	"github.com/cycore-edu/cycore/backend/internal/identity"
	"github.com/cycore-edu/cycore/backend/internal/logger"
	"github.com/cycore-edu/cycore/backend/internal/service/ai"
	"github.com/cycore-edu/cycore/backend/internal/service/chat"
	"github.com/cycore-edu/cycore/backend/internal/service/title"
	"github.com/cycore-edu/cycore/backend/internal/service/tutor"
	"github.com/cycore-edu/cycore/backend/internal/store"
	"github.com/cycore-edu/cycore/backend/internal/trigger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] no .env loaded, using process environment: %v", err)
	}

	mode := flag.String("mode", "", "one of: chat, keygen, token")
	text := flag.String("text", "", "chat: a single message to send; reads stdin lines when empty")
	subject := flag.String("sub", "", "token: user id to embed")
	name := flag.String("name", "", "token: display name to embed")
	ttl := flag.Duration("ttl", 24*time.Hour, "token: lifetime")
	timeout := flag.Duration("timeout", 60*time.Second, "chat: per-turn timeout")
	flag.Parse()

	switch *mode {
	case "keygen":
		key, err := store.GenerateKey()
		if err != nil {
			log.Fatalf("generate key: %v", err)
		}
		fmt.Println(key)
	case "token":
		runToken(*subject, *name, *ttl)
	case "chat":
		runChat(*text, *timeout)
	default:
		flag.Usage()
		log.Fatal("choose -mode=chat, -mode=keygen or -mode=token")
	}
}

func runToken(subject, name string, ttl time.Duration) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		log.Fatal("JWT_SECRET must be set to issue tokens")
	}
	if subject == "" {
		log.Fatal("-sub is required")
	}
	token, err := identity.IssueToken(secret, subject, name, ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
}

// runChat drives the tutor in-process with a guest session and no storage.
func runChat(text string, timeout time.Duration) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	appLog, err := logger.New(cfg.Log.Mode)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer appLog.Sync()

	gen, err := ai.New(context.Background(), cfg.AI, appLog)
	if err != nil {
		log.Printf("[WARN] generation backend unavailable: %v", err)
		gen = nil
	}

	chats := chat.NewService(nil, appLog)
	tutorSvc := tutor.NewService(chats, gen, title.NewService(gen, appLog), appLog,
		tutor.WithStreaming(true), tutor.WithCoin(trigger.CoinFromSeed(cfg.Trigger.Seed)))
	user := identity.User{ID: fmt.Sprintf("anon-cli-%d", time.Now().UnixNano()), DisplayName: "Guest"}

	send := func(msg string) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		streamed := false
		err := chats.Do(ctx, user, func(sess *chat.Session) error {
			result, err := tutorSvc.HandleTurn(ctx, sess, msg, func(delta string) {
				streamed = true
				fmt.Print(delta)
			})
			if err != nil {
				return err
			}
			if streamed {
				fmt.Println()
			}
			for i, reply := range result.Replies {
				if streamed && i == 0 {
					continue
				}
				fmt.Println(reply)
			}
			fmt.Printf("-- [%s] verdict=%s game=%s\n", result.Name, result.Verdict, result.Game.Step)
			return nil
		})
		if err != nil {
			log.Printf("[ERROR] turn failed: %v", err)
		}
	}

	if text != "" {
		send(text)
		return
	}

	fmt.Println(tutorSvc.Profile().OpeningLine)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			send(line)
		}
	}
}
