package notification

import (
	"context"
	"fmt"
	"log"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
)

// maxTokensPerMulticast is the FCM limit for one multicast request
const maxTokensPerMulticast = 500

// multicastSender is the part of messaging.Client used here
type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCM sends push notifications through Firebase Cloud Messaging
type FCM struct {
	client multicastSender
}

// NewFCM creates a new FCM client. It returns nil when push is not configured,
// which every method treats as disabled.
func NewFCM(ctx context.Context, credentialsFile string) *FCM {
	if credentialsFile == "" {
		log.Println("⚠️ Firebase credentials not provided, push notifications disabled")
		return nil
	}

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		// Log warning instead of error to not block server startup
		log.Printf("⚠️ Failed to initialize Firebase app: %v (push notifications disabled)", err)
		return nil
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		log.Printf("⚠️ Failed to get messaging client: %v", err)
		return nil
	}

	log.Println("✅ Firebase FCM initialized")
	return &FCM{client: client}
}

// SendMulticast pushes one notification to all tokens, in batches of at most
// 500 sent concurrently. It returns the tokens FCM reported as unregistered.
func (f *FCM) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]string, error) {
	if f == nil || f.client == nil || len(tokens) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		invalid []string
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, batch := range chunk(tokens, maxTokensPerMulticast) {
		g.Go(func() error {
			br, err := f.client.SendEachForMulticast(ctx, newMulticast(batch, title, body, data))
			if err != nil {
				return fmt.Errorf("error sending multicast message: %w", err)
			}
			if br.FailureCount == 0 {
				return nil
			}
			for idx, resp := range br.Responses {
				if resp.Success {
					continue
				}
				if messaging.IsUnregistered(resp.Error) || messaging.IsInvalidArgument(resp.Error) {
					mu.Lock()
					invalid = append(invalid, batch[idx])
					mu.Unlock()
					continue
				}
				log.Printf("⚠️ FCM failure for token %s: %v", batch[idx], resp.Error)
			}
			return nil
		})
	}
	err := g.Wait()
	return invalid, err
}

func newMulticast(tokens []string, title, body string, data map[string]string) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ClickAction: "FLUTTER_NOTIFICATION_CLICK",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}
}

func chunk(tokens []string, size int) [][]string {
	var batches [][]string
	for size < len(tokens) {
		tokens, batches = tokens[size:], append(batches, tokens[:size:size])
	}
	if len(tokens) > 0 {
		batches = append(batches, tokens)
	}
	return batches
}
