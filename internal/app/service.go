package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"ncstreamer/internal/infra/encoder"
	"ncstreamer/internal/model"
	"ncstreamer/internal/repo"
	"ncstreamer/pkg/provider"
)

// Provider is the streaming service the user broadcasts to.
type Provider interface {
	LogIn(ctx context.Context, designatedUser string) (*provider.LoginResponse, error)
	PostLiveVideo(ctx context.Context, p provider.PostParams) (*provider.LiveVideo, error)
}

// Service implements the application side of the remote control protocol.
type Service struct {
	Settings repo.SettingsRepo
	Provider Provider
	Engine   encoder.Engine

	log      *zap.Logger
	exit     func()
	exitOnce sync.Once

	mu        sync.Mutex
	state     model.StreamState
	source    string
	userName  string
	quality   model.VideoQuality
}

// NewService creates the service. The stored video quality wins over
// defaultQuality; exit is called at most once, on an exit request.
func NewService(settings repo.SettingsRepo, p Provider, engine encoder.Engine, defaultQuality model.VideoQuality, exit func(), log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		Settings: settings,
		Provider: p,
		Engine:   engine,
		log:      log,
		exit:     exit,
		state:    model.StreamStandby,
		quality:  defaultQuality,
	}

	stored, err := settings.All()
	if err != nil {
		log.Warn("load settings", zap.Error(err))
	}
	log.Info("settings loaded", zap.Any("settings", stored))
	if v := stored[repo.KeyVideoQuality]; v != "" {
		if q, err := model.ParseVideoQuality(v); err != nil {
			log.Warn("ignoring stored video quality", zap.String("value", v), zap.Error(err))
		} else {
			s.quality = q
		}
	}
	if err := engine.UpdateVideoQuality(s.quality); err != nil {
		log.Warn("apply video quality", zap.Error(err))
	}
	return s
}

// Status reports the current streaming state.
func (s *Service) Status() model.StreamingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.StreamingStatus{
		Status:      string(s.state),
		SourceTitle: s.source,
		UserName:    s.userName,
		Quality:     s.quality.Name(),
	}
}

// Exit asks the process to shut down.
func (s *Service) Exit() {
	s.exitOnce.Do(func() {
		s.log.Info("exit requested")
		if s.exit != nil {
			s.exit()
		}
	})
}

func (s *Service) saveSetting(key, value string) {
	if err := s.Settings.Set(key, value); err != nil {
		s.log.Warn("save setting", zap.String("key", key), zap.Error(err))
	}
}

func finish(err error) <-chan error {
	done := make(chan error, 1)
	done <- err
	return done
}
