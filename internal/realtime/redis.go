package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platfrom_be_invest/internal/models"
)

const walletChannel = "wallet:events"

// NewRedis creates a new Redis client
func NewRedis(addr, password string, log *zap.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	log.Info("redis client created", zap.String("addr", addr))
	return rdb
}

// WalletEvent is pushed to a user's sockets whenever a ledger entry of theirs
// is committed.
type WalletEvent struct {
	Type   string              `json:"type"`
	UserID uuid.UUID           `json:"user_id"`
	Entry  *models.Transaction `json:"transaction"`
}

// Notifier fans ledger entries out to connected users. With a Redis client
// events go through pub/sub so every instance delivers to its own sockets;
// without one they are delivered locally.
type Notifier struct {
	Hub *Hub
	RDB *redis.Client
	Log *zap.Logger
}

func NewNotifier(hub *Hub, rdb *redis.Client, log *zap.Logger) *Notifier {
	return &Notifier{Hub: hub, RDB: rdb, Log: log}
}

func (n *Notifier) LedgerEntry(entry *models.Transaction) {
	ev := WalletEvent{Type: "ledger_entry", UserID: entry.UserID, Entry: entry}
	payload, err := json.Marshal(ev)
	if err != nil {
		n.Log.Error("marshal wallet event", zap.Error(err))
		return
	}
	if n.RDB == nil {
		n.Hub.deliver(entry.UserID, payload)
		return
	}
	if err := n.RDB.Publish(context.Background(), walletChannel, payload).Err(); err != nil {
		n.Log.Warn("publish wallet event failed, delivering locally", zap.Error(err))
		n.Hub.deliver(entry.UserID, payload)
	}
}

// Subscribe relays published wallet events to local sockets until ctx ends.
func (n *Notifier) Subscribe(ctx context.Context) {
	if n.RDB == nil {
		return
	}
	sub := n.RDB.Subscribe(ctx, walletChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev WalletEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				n.Log.Warn("bad wallet event", zap.Error(err))
				continue
			}
			n.Hub.deliver(ev.UserID, []byte(msg.Payload))
		}
	}
}
