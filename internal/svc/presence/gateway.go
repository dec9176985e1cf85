package presence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/stepcord/stepcord/internal/instance"
	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/status"
	"go.uber.org/zap"
)

// gatewaySession publishes presence as a bot user over the Discord gateway.
// discordgo runs the websocket and heartbeat on its own goroutines.
type gatewaySession struct {
	kind  kind.Kind
	token string

	state atomic.Int32

	mtx sync.Mutex
	dg  *discordgo.Session
}

func newGatewaySession(k kind.Kind, token string) *gatewaySession {
	return &gatewaySession{
		kind:  k,
		token: token,
	}
}

func (s *gatewaySession) Kind() kind.Kind {
	return s.kind
}

func (s *gatewaySession) State() instance.SessionState {
	return instance.SessionState(s.state.Load())
}

func (s *gatewaySession) Connect(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + s.token)
	if err != nil {
		return err
	}

	dg.Identify.Intents = discordgo.IntentsGuilds
	dg.ShouldReconnectOnError = false

	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		s.state.Store(int32(instance.SessionConnected))
		zap.S().Infow("presence channel ready",
			"kind", s.kind.String(),
			"transport", "gateway",
			"user", r.User.Username,
		)
	})
	dg.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		s.state.Store(int32(instance.SessionDisconnected))
	})

	if err := dg.Open(); err != nil {
		return fmt.Errorf("gateway open: %w", err)
	}

	s.mtx.Lock()
	s.dg = dg
	s.mtx.Unlock()

	return nil
}

func (s *gatewaySession) Publish(ctx context.Context, st status.Status) error {
	act := &discordgo.Activity{
		Name:    st.Title,
		Type:    discordgo.ActivityTypeGame,
		Details: st.Title,
		State:   st.Subtitle,
		Assets: discordgo.Assets{
			LargeImageID: st.ImageKey,
			LargeText:    st.ImageText,
		},
	}

	if !st.Start.IsZero() {
		act.Timestamps.StartTimestamp = st.Start.UnixMilli()
	}
	if !st.End.IsZero() {
		act.Timestamps.EndTimestamp = st.End.UnixMilli()
	}

	return s.update([]*discordgo.Activity{act})
}

func (s *gatewaySession) Clear(ctx context.Context) error {
	return s.update([]*discordgo.Activity{})
}

func (s *gatewaySession) update(activities []*discordgo.Activity) error {
	s.mtx.Lock()
	dg := s.dg
	s.mtx.Unlock()

	if dg == nil || s.State() != instance.SessionConnected {
		return ErrNotConnected
	}

	return dg.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status:     "online",
		Activities: activities,
	})
}

func (s *gatewaySession) Close() error {
	s.state.Store(int32(instance.SessionDisconnected))

	s.mtx.Lock()
	dg := s.dg
	s.dg = nil
	s.mtx.Unlock()

	if dg == nil {
		return nil
	}

	return dg.Close()
}
