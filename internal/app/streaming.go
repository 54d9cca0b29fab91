package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ncstreamer/internal/model"
	"ncstreamer/internal/repo"
	"ncstreamer/pkg/provider"
)

var ErrInvalidQuality = errors.New("width, height, fps and bitrate must be positive")

// StartStreaming logs in if needed, posts the live video and starts the
// encoder. The returned channel yields the outcome once.
func (s *Service) StartStreaming(ctx context.Context, p model.StartParams) <-chan error {
	s.mu.Lock()
	if s.state != model.StreamStandby {
		state := s.state
		s.mu.Unlock()
		return finish(fmt.Errorf("cannot start streaming while %s", state))
	}
	s.state = model.StreamStarting
	s.source = p.Source
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		err := s.start(ctx, p)

		s.mu.Lock()
		if err != nil {
			s.state = model.StreamStandby
			s.source = ""
		} else {
			s.state = model.StreamOnAir
		}
		s.mu.Unlock()

		if err != nil {
			s.log.Warn("start streaming failed", zap.String("source", p.Source), zap.Error(err))
		} else {
			s.log.Info("streaming on air", zap.String("source", p.Source), zap.String("userPage", p.UserPage))
		}
		done <- err
	}()
	return done
}

func (s *Service) start(ctx context.Context, p model.StartParams) error {
	if err := s.ensureLogin(ctx); err != nil {
		return err
	}

	video, err := s.Provider.PostLiveVideo(ctx, provider.PostParams{
		UserPage:    p.UserPage,
		Privacy:     p.Privacy,
		Title:       p.Title,
		Description: p.Description,
	})
	if err != nil {
		return err
	}

	if err := s.Engine.Start(ctx, p.Source, video.ServiceProvider, video.StreamURL); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}

	s.saveSetting(repo.KeyUserPage, p.UserPage)
	s.saveSetting(repo.KeyPrivacy, p.Privacy)
	return nil
}

func (s *Service) ensureLogin(ctx context.Context) error {
	s.mu.Lock()
	loggedIn := s.userName != ""
	s.mu.Unlock()
	if loggedIn {
		return nil
	}

	designated, err := s.Settings.Get(repo.KeyDesignatedUser)
	if err != nil {
		s.log.Warn("load designated user", zap.Error(err))
	}
	login, err := s.Provider.LogIn(ctx, designated)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.userName = login.UserName
	s.mu.Unlock()

	pages := make([]string, 0, len(login.UserPages))
	for _, pg := range login.UserPages {
		pages = append(pages, pg.ID)
	}
	s.log.Info("logged in", zap.String("user", login.UserName), zap.Strings("pages", pages))
	return nil
}

// StopStreaming stops the encoder.
func (s *Service) StopStreaming(ctx context.Context) <-chan error {
	s.mu.Lock()
	if s.state != model.StreamOnAir {
		state := s.state
		s.mu.Unlock()
		return finish(fmt.Errorf("cannot stop streaming while %s", state))
	}
	s.state = model.StreamStopping
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		err := s.Engine.Stop(ctx)

		s.mu.Lock()
		if err != nil {
			s.state = model.StreamOnAir
		} else {
			s.state = model.StreamStandby
			s.source = ""
		}
		s.mu.Unlock()

		if err != nil {
			err = fmt.Errorf("stop encoder: %w", err)
			s.log.Warn("stop streaming failed", zap.Error(err))
		} else {
			s.log.Info("streaming stopped")
		}
		done <- err
	}()
	return done
}

// UpdateVideoQuality applies q to the encoder and remembers it.
func (s *Service) UpdateVideoQuality(ctx context.Context, q model.VideoQuality) <-chan error {
	if !q.Valid() {
		return finish(ErrInvalidQuality)
	}

	done := make(chan error, 1)
	go func() {
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		if err := s.Engine.UpdateVideoQuality(q); err != nil {
			done <- fmt.Errorf("update video quality: %w", err)
			return
		}
		s.mu.Lock()
		s.quality = q
		s.mu.Unlock()
		s.saveSetting(repo.KeyVideoQuality, q.String())
		done <- nil
	}()
	return done
}
