package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ncstreamer/internal/infra/encoder"
	"ncstreamer/internal/model"
	"ncstreamer/internal/repo"
	"ncstreamer/pkg/provider"
)

type fakeProvider struct {
	logins     atomic.Int32
	designated atomic.Value
	loginErr   error
	postErr    error
	posted     chan provider.PostParams
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{posted: make(chan provider.PostParams, 4)}
}

func (p *fakeProvider) LogIn(ctx context.Context, designatedUser string) (*provider.LoginResponse, error) {
	p.logins.Add(1)
	p.designated.Store(designatedUser)
	if p.loginErr != nil {
		return nil, p.loginErr
	}
	return &provider.LoginResponse{
		UserName:  "host",
		UserPages: []provider.UserPage{{ID: "me", Name: "Timeline"}},
	}, nil
}

func (p *fakeProvider) PostLiveVideo(ctx context.Context, params provider.PostParams) (*provider.LiveVideo, error) {
	if p.postErr != nil {
		return nil, p.postErr
	}
	p.posted <- params
	return &provider.LiveVideo{ServiceProvider: "test", StreamURL: "rtmp://127.0.0.1/live/abc"}, nil
}

func newTestService(t *testing.T, p Provider) (*Service, *encoder.Logging, repo.SettingsRepo, *atomic.Int32) {
	t.Helper()
	settings, err := repo.NewMemoryRepo()
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}
	t.Cleanup(func() { settings.Close() })

	engine := encoder.NewLogging(nil)
	var exits atomic.Int32
	svc := NewService(settings, p, engine, model.Presets["medium"], func() { exits.Add(1) }, nil)
	return svc, engine, settings, &exits
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("operation did not complete")
		return nil
	}
}

var startParams = model.StartParams{
	Source:      "Game",
	UserPage:    "me",
	Privacy:     "SELF",
	Title:       "evening run",
	Description: "",
}

func TestStatusInitial(t *testing.T) {
	svc, engine, _, _ := newTestService(t, newFakeProvider())

	st := svc.Status()
	want := model.StreamingStatus{Status: "standby", Quality: "medium"}
	if st != want {
		t.Fatalf("status = %+v, want %+v", st, want)
	}
	if engine.Quality() != model.Presets["medium"] {
		t.Fatalf("engine quality = %v", engine.Quality())
	}
}

func TestStartAndStopStreaming(t *testing.T) {
	p := newFakeProvider()
	svc, engine, settings, _ := newTestService(t, p)
	if err := settings.Set(repo.KeyDesignatedUser, "alice"); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := wait(t, svc.StartStreaming(context.Background(), startParams)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !engine.Running() {
		t.Fatal("engine not running after start")
	}
	if got := p.designated.Load(); got != "alice" {
		t.Fatalf("designated user = %v", got)
	}
	posted := <-p.posted
	if posted.UserPage != "me" || posted.Privacy != "SELF" || posted.Title != "evening run" {
		t.Fatalf("posted = %+v", posted)
	}

	st := svc.Status()
	if st.Status != "onAir" || st.SourceTitle != "Game" || st.UserName != "host" {
		t.Fatalf("status after start = %+v", st)
	}
	if v, _ := settings.Get(repo.KeyUserPage); v != "me" {
		t.Fatalf("stored userPage = %q", v)
	}
	if v, _ := settings.Get(repo.KeyPrivacy); v != "SELF" {
		t.Fatalf("stored privacy = %q", v)
	}

	if err := wait(t, svc.StopStreaming(context.Background())); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if engine.Running() {
		t.Fatal("engine still running after stop")
	}
	if st := svc.Status(); st.Status != "standby" || st.SourceTitle != "" {
		t.Fatalf("status after stop = %+v", st)
	}
}

func TestLoginHappensOnce(t *testing.T) {
	p := newFakeProvider()
	svc, _, _, _ := newTestService(t, p)

	for i := 0; i < 2; i++ {
		if err := wait(t, svc.StartStreaming(context.Background(), startParams)); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if err := wait(t, svc.StopStreaming(context.Background())); err != nil {
			t.Fatalf("stop %d: %v", i, err)
		}
	}
	if n := p.logins.Load(); n != 1 {
		t.Fatalf("logins = %d, want 1", n)
	}
}

func TestStartWhileOnAirFails(t *testing.T) {
	svc, _, _, _ := newTestService(t, newFakeProvider())

	if err := wait(t, svc.StartStreaming(context.Background(), startParams)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := wait(t, svc.StartStreaming(context.Background(), startParams)); err == nil {
		t.Fatal("second start succeeded")
	}
	if st := svc.Status(); st.Status != "onAir" {
		t.Fatalf("status = %q", st.Status)
	}
}

func TestStopWhileStandbyFails(t *testing.T) {
	svc, _, _, _ := newTestService(t, newFakeProvider())

	if err := wait(t, svc.StopStreaming(context.Background())); err == nil {
		t.Fatal("stop in standby succeeded")
	}
}

func TestStartFailureReturnsToStandby(t *testing.T) {
	loginFailed := errors.New("login rejected")
	p := newFakeProvider()
	p.loginErr = loginFailed
	svc, engine, settings, _ := newTestService(t, p)

	err := wait(t, svc.StartStreaming(context.Background(), startParams))
	if !errors.Is(err, loginFailed) {
		t.Fatalf("start err = %v", err)
	}
	if engine.Running() {
		t.Fatal("engine started despite login failure")
	}
	st := svc.Status()
	if st.Status != "standby" || st.SourceTitle != "" || st.UserName != "" {
		t.Fatalf("status = %+v", st)
	}
	if v, _ := settings.Get(repo.KeyUserPage); v != "" {
		t.Fatalf("userPage stored after failure: %q", v)
	}
}

func TestStartPostFailure(t *testing.T) {
	p := newFakeProvider()
	p.postErr = &provider.StatusError{Code: 500, Body: "boom"}
	svc, _, _, _ := newTestService(t, p)

	err := wait(t, svc.StartStreaming(context.Background(), startParams))
	var se *provider.StatusError
	if !errors.As(err, &se) || se.Code != 500 {
		t.Fatalf("start err = %v", err)
	}
	if st := svc.Status(); st.Status != "standby" {
		t.Fatalf("status = %q", st.Status)
	}
}

func TestUpdateVideoQualityPersists(t *testing.T) {
	svc, engine, settings, _ := newTestService(t, newFakeProvider())

	q := model.Presets["high"]
	if err := wait(t, svc.UpdateVideoQuality(context.Background(), q)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if engine.Quality() != q {
		t.Fatalf("engine quality = %v", engine.Quality())
	}
	if st := svc.Status(); st.Quality != "high" {
		t.Fatalf("status quality = %q", st.Quality)
	}
	if v, _ := settings.Get(repo.KeyVideoQuality); v != q.String() {
		t.Fatalf("stored quality = %q", v)
	}

	custom := model.VideoQuality{Width: 1920, Height: 1080, FPS: 60, Bitrate: 6000}
	if err := wait(t, svc.UpdateVideoQuality(context.Background(), custom)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if st := svc.Status(); st.Quality != custom.String() {
		t.Fatalf("status quality = %q", st.Quality)
	}
}

func TestUpdateVideoQualityRejectsZero(t *testing.T) {
	svc, engine, _, _ := newTestService(t, newFakeProvider())

	err := wait(t, svc.UpdateVideoQuality(context.Background(), model.VideoQuality{Width: 640}))
	if !errors.Is(err, ErrInvalidQuality) {
		t.Fatalf("err = %v", err)
	}
	if engine.Quality() != model.Presets["medium"] {
		t.Fatalf("engine quality changed to %v", engine.Quality())
	}
}

func TestStoredQualityWinsOverDefault(t *testing.T) {
	settings, err := repo.NewMemoryRepo()
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}
	defer settings.Close()
	if err := settings.Set(repo.KeyVideoQuality, model.Presets["low"].String()); err != nil {
		t.Fatalf("set: %v", err)
	}

	engine := encoder.NewLogging(nil)
	svc := NewService(settings, newFakeProvider(), engine, model.Presets["high"], nil, nil)
	if st := svc.Status(); st.Quality != "low" {
		t.Fatalf("status quality = %q", st.Quality)
	}
	if engine.Quality() != model.Presets["low"] {
		t.Fatalf("engine quality = %v", engine.Quality())
	}
}

func TestExitRunsOnce(t *testing.T) {
	svc, _, _, exits := newTestService(t, newFakeProvider())

	svc.Exit()
	svc.Exit()
	if n := exits.Load(); n != 1 {
		t.Fatalf("exit called %d times", n)
	}
}

func TestStartupAndLoginLogged(t *testing.T) {
	settings, err := repo.NewMemoryRepo()
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}
	defer settings.Close()
	if err := settings.Set(repo.KeyPrivacy, "SELF"); err != nil {
		t.Fatalf("set: %v", err)
	}

	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewService(settings, newFakeProvider(), encoder.NewLogging(nil), model.Presets["medium"], nil, zap.New(core))

	loaded := logs.FilterMessage("settings loaded").All()
	if len(loaded) != 1 {
		t.Fatalf("settings loaded logged %d times", len(loaded))
	}
	stored, ok := loaded[0].ContextMap()["settings"].(map[string]string)
	if !ok || stored[repo.KeyPrivacy] != "SELF" {
		t.Fatalf("logged settings = %#v", loaded[0].ContextMap()["settings"])
	}

	if err := wait(t, svc.StartStreaming(context.Background(), startParams)); err != nil {
		t.Fatalf("start: %v", err)
	}
	login := logs.FilterMessage("logged in").All()
	if len(login) != 1 {
		t.Fatalf("logged in logged %d times", len(login))
	}
	pages, _ := login[0].ContextMap()["pages"].([]interface{})
	if len(pages) != 1 || pages[0] != "me" {
		t.Fatalf("logged pages = %#v", login[0].ContextMap()["pages"])
	}
}
