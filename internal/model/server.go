package model

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/leafscan-api/internal/lazy"
)

// Config controls how the ONNX model is loaded.
type Config struct {
	ModelPath         string
	SharedLibraryPath string
	Sessions          int
}

// session owns one ONNX session with its bound input and output tensors.
// A session must only be run by one goroutine at a time.
type session struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

type sessionPool struct {
	sessions []*session
	free     chan *session
}

// Server runs the ONNX model. Sessions are created lazily on the first
// inference so the process can start, and report not ready, without a model.
type Server struct {
	Metadata Metadata

	cfg    Config
	logger *zap.Logger
	pool   *lazy.Handle[*sessionPool]

	closeOnce sync.Once
}

// envMu guards the process-wide ONNX environment.
var envMu sync.Mutex

func NewServer(cfg Config, metadata Metadata, logger *zap.Logger) *Server {
	if cfg.Sessions <= 0 {
		cfg.Sessions = 1
	}
	s := &Server{
		Metadata: metadata,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "onnx")),
	}
	s.pool = lazy.New(s.load)
	return s
}

func (s *Server) load(ctx context.Context) (*sessionPool, error) {
	envMu.Lock()
	if !ort.IsInitialized() {
		if s.cfg.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(s.cfg.SharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envMu.Unlock()
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envMu.Unlock()

	pool := &sessionPool{
		sessions: make([]*session, s.cfg.Sessions),
		free:     make(chan *session, s.cfg.Sessions),
	}

	var g errgroup.Group
	for i := range pool.sessions {
		i := i
		g.Go(func() error {
			sess, err := s.newSession()
			if err != nil {
				return err
			}
			pool.sessions[i] = sess
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, sess := range pool.sessions {
			if sess != nil {
				sess.destroy()
			}
		}
		return nil, err
	}

	for _, sess := range pool.sessions {
		pool.free <- sess
	}

	s.logger.Info("Model loaded",
		zap.String("path", s.cfg.ModelPath),
		zap.Int("sessions", len(pool.sessions)),
		zap.Int("classes", Elements(s.Metadata.OutputShape)))
	return pool, nil
}

func (s *Server) newSession() (*session, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(s.Metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(s.Metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	sess, err := ort.NewAdvancedSession(s.cfg.ModelPath,
		[]string{s.Metadata.InputName}, []string{s.Metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &session{
		session:      sess,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Warm loads the model ahead of the first request.
func (s *Server) Warm(ctx context.Context) error {
	_, err := s.pool.Get(ctx)
	return err
}

// Ready reports whether the model has been loaded.
func (s *Server) Ready() bool {
	return s.pool.Ready()
}

// Infer runs one forward pass and returns a copy of the output vector.
// Any failure to load the model is reported as ErrUnavailable.
func (s *Server) Infer(ctx context.Context, t Tensor) ([]float32, error) {
	pool, err := s.pool.Get(ctx)
	if err != nil {
		s.logger.Error("Model load failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	want := Elements(s.Metadata.InputShape)
	if len(t.Data) != want {
		return nil, fmt.Errorf("expected %d input values, got %d", want, len(t.Data))
	}

	var sess *session
	select {
	case sess = <-pool.free:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { pool.free <- sess }()

	copy(sess.inputTensor.GetData(), t.Data)
	if err := sess.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := sess.outputTensor.GetData()
	probs := make([]float32, len(out))
	copy(probs, out)
	return probs, nil
}

func (s *session) destroy() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
}

// Close releases the sessions and the ONNX environment.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		pool, ok := s.pool.Peek()
		if !ok {
			return
		}
		for _, sess := range pool.sessions {
			sess.destroy()
		}
		envMu.Lock()
		defer envMu.Unlock()
		if err := ort.DestroyEnvironment(); err != nil {
			s.logger.Warn("Failed to destroy ONNX environment", zap.Error(err))
		}
	})
}
