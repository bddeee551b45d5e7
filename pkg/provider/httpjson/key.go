package httpjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Getter is the interface that wraps GetParameter. paramstore.Client and
// paramstore.Static both satisfy it.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// tokenPayload is the JSON shape accepted for secrets stored as objects.
type tokenPayload struct {
	Token string `json:"token"`
}

// Key resolves a provider secret on first use. A resolved secret is cached
// for the lifetime of the process; a failed lookup is retried on the next call.
type Key struct {
	getter Getter
	name   string
	static bool

	mu       sync.Mutex
	value    string
	resolved bool
}

// NewKey returns a Key read from getter under name.
func NewKey(getter Getter, name string) *Key {
	return &Key{getter: getter, name: strings.TrimSpace(name)}
}

// StaticKey returns a Key that always resolves to value.
func StaticKey(value string) *Key {
	return &Key{name: "static", static: true, value: value, resolved: value != ""}
}

// Resolve returns the secret, fetching it until a lookup succeeds.
func (k *Key) Resolve(ctx context.Context) (string, error) {
	if k == nil {
		return "", errors.New("api key not configured")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.resolved {
		return k.value, nil
	}
	if k.static {
		return "", errors.New("api key is empty")
	}

	value, err := fetch(ctx, k.getter, k.name)
	if err != nil {
		return "", err
	}
	k.value, k.resolved = value, true
	return value, nil
}

func fetch(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("paramstore getter is nil")
	}
	if name == "" {
		return "", errors.New("secret parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("fetch secret %s: %w", name, err)
	}

	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var tp tokenPayload
		if err := json.Unmarshal([]byte(raw), &tp); err != nil {
			return "", fmt.Errorf("unmarshal secret %s as JSON: %w", name, err)
		}
		raw = tp.Token
	}
	if raw == "" {
		return "", fmt.Errorf("secret %s is empty", name)
	}
	return raw, nil
}
