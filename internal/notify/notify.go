// Package notify pushes insight notifications to user devices. Delivery is
// fire-and-forget from the engine's perspective: a failed push never
// prevents an insight from being persisted.
package notify

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/avolkov/spendwatch/internal/store"
)

// Notifier dispatches a push notification to the owner's device, if any.
type Notifier interface {
	Notify(ctx context.Context, ownerID, title, body string, data map[string]string) error
}

// FCM sends notifications through Firebase Cloud Messaging, resolving the
// owner's device token from the user profile store.
type FCM struct {
	client *messaging.Client
	users  store.UserStore
	log    zerolog.Logger
}

// NewFCM initializes the Firebase app and messaging client. credentialsFile
// may be empty, in which case Application Default Credentials are used.
func NewFCM(ctx context.Context, credentialsFile string, users store.UserStore, log zerolog.Logger) (*FCM, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewFCM: initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewFCM: creating messaging client: %w", err)
	}
	return &FCM{client: client, users: users, log: log}, nil
}

// Notify implements the Notifier interface. Owners without a registered
// device token are skipped silently.
func (f *FCM) Notify(ctx context.Context, ownerID, title, body string, data map[string]string) error {
	user, err := f.users.GetUser(ctx, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("Notify: resolving user %s: %w", ownerID, err)
	}
	if user.DeviceToken == "" {
		f.log.Debug().Str("owner_id", ownerID).Msg("No device token, skipping push")
		return nil
	}

	_, err = f.client.Send(ctx, &messaging.Message{
		Token: user.DeviceToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("Notify: sending push to %s: %w", ownerID, err)
	}
	return nil
}

var _ Notifier = (*FCM)(nil)
