// Command notifyctl is an operator tool for the notification service: it
// mints bearer tokens and publishes producer events.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	mqcontracts "casedesk/contracts/mq"
	"casedesk/internal/config"
	"casedesk/pkg/mq"
	"casedesk/pkg/trace"
	"casedesk/pkg/util"

	"github.com/google/uuid"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "token":
		err = runToken(cfg, os.Args[2:])
	case "publish":
		err = runPublish(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: notifyctl token|publish [flags]")
}

func runToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	user := fs.String("user", "", "user id (required)")
	role := fs.String("role", "user", "role: user, admin or system")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	_ = fs.Parse(args)

	if *user == "" {
		return fmt.Errorf("-user is required")
	}
	token, err := util.GenerateJWT(*user, *role, cfg.JWT.Secret, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runPublish(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	owner := fs.String("owner", "", "recipient user id (required)")
	title := fs.String("title", "", "title (required)")
	message := fs.String("message", "", "message (required)")
	typ := fs.String("type", "", "category")
	priority := fs.String("priority", "", "priority")
	link := fs.String("link", "", "deep link")
	metadata := fs.String("metadata", "", "metadata as a JSON object")
	_ = fs.Parse(args)

	p := mqcontracts.NotificationCreatedPayload{
		EventID:   uuid.NewString(),
		Owner:     *owner,
		Title:     *title,
		Message:   *message,
		Type:      *typ,
		Link:      *link,
		Priority:  *priority,
		CreatedAt: time.Now().UTC(),
	}
	if *metadata != "" {
		if err := json.Unmarshal([]byte(*metadata), &p.Metadata); err != nil {
			return fmt.Errorf("invalid -metadata: %w", err)
		}
	}

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		return err
	}
	defer publisher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = trace.WithContext(ctx, trace.GenerateTraceID())

	if err := publisher.Publish(ctx, mqcontracts.RoutingKeyNotificationCreated, p.EventID, p); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	fmt.Println(p.EventID)
	return nil
}
