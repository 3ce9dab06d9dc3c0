package genai

import (
	"context"
	"sync"
	"time"

	"thoth/internal/utils"

	"go.uber.org/zap"
	googleai "google.golang.org/genai"
)

const (
	liveInputMIME  = "audio/pcm;rate=16000"
	liveSetupWait  = 15 * time.Second
	liveEventQueue = 64
)

// LiveEvent is one message from a live audio session. Exactly one of the
// fields is meaningful per event.
type LiveEvent struct {
	Audio        []byte `json:"-"`
	MIMEType     string `json:"mimeType,omitempty"`
	Transcript   string `json:"transcript,omitempty"`
	TurnComplete bool   `json:"turnComplete,omitempty"`
	Err          error  `json:"-"`
}

// LiveSession is a bidirectional audio conversation with the model.
type LiveSession struct {
	session   *googleai.Session
	writeMu   sync.Mutex
	events    chan LiveEvent
	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// DialLive opens a live session and waits for the backend to accept the setup.
func (c *Client) DialLive(ctx context.Context) (*LiveSession, error) {
	var session *googleai.Session
	err := c.do(ctx, "live", func(sdk *googleai.Client) error {
		var err error
		session, err = sdk.Live.Connect(ctx, c.cfg.LiveModel, &googleai.LiveConnectConfig{
			ResponseModalities:       []googleai.Modality{googleai.ModalityAudio},
			OutputAudioTranscription: &googleai.AudioTranscriptionConfig{},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s := &LiveSession{
		session: session,
		events:  make(chan LiveEvent, liveEventQueue),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.readPump()

	timer := time.NewTimer(liveSetupWait)
	defer timer.Stop()
	select {
	case <-s.ready:
		return s, nil
	case ev, ok := <-s.events:
		s.Close()
		if ok && ev.Err != nil {
			return nil, utils.NewAppError(utils.ErrUpstream, "live session setup failed", ev.Err)
		}
		return nil, utils.NewAppError(utils.ErrUpstream, "live session closed during setup", nil)
	case <-timer.C:
		s.Close()
		return nil, utils.NewAppError(utils.ErrTimeout, "live session setup timed out", nil)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

// SendAudio streams one chunk of 16 kHz little-endian PCM.
func (s *LiveSession) SendAudio(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.session.SendRealtimeInput(googleai.LiveRealtimeInput{
		Audio: &googleai.Blob{Data: pcm, MIMEType: liveInputMIME},
	})
}

// Events delivers model output until the session ends.
func (s *LiveSession) Events() <-chan LiveEvent {
	return s.events
}

func (s *LiveSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		err = s.session.Close()
		s.writeMu.Unlock()
	})
	return err
}

func (s *LiveSession) readPump() {
	defer close(s.events)
	setup := false
	for {
		msg, err := s.session.Receive()
		if err != nil {
			select {
			case <-s.done:
			default:
				utils.Logger.Debug("live session ended", zap.Error(err))
				s.emit(LiveEvent{Err: err})
			}
			return
		}
		if msg == nil {
			continue
		}
		if msg.SetupComplete != nil && !setup {
			setup = true
			close(s.ready)
			continue
		}
		sc := msg.ServerContent
		if sc == nil {
			continue
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
					continue
				}
				if !s.emit(LiveEvent{Audio: p.InlineData.Data, MIMEType: p.InlineData.MIMEType}) {
					return
				}
			}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			if !s.emit(LiveEvent{Transcript: sc.OutputTranscription.Text}) {
				return
			}
		}
		if sc.TurnComplete && !s.emit(LiveEvent{TurnComplete: true}) {
			return
		}
	}
}

// emit queues ev unless the session was closed.
func (s *LiveSession) emit(ev LiveEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}
