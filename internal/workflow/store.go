package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"vidsub/internal/logging"
)

// DefaultKey is the slot key the snapshot is stored under.
const DefaultKey = "video-translator-workflow"

// Slot is a durable key-value cell.
type Slot interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// State is a read-only snapshot of the workflow.
type State struct {
	CurrentStep     Step
	CompletedSteps  []Step
	Artifacts       Artifacts
	IsProcessing    bool
	LastPersistedAt *time.Time
	SegmentsPending bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPolicy selects the step access policy.
func WithPolicy(p Policy) Option {
	return func(s *Store) { s.policy = p }
}

// WithClock overrides the time source used for LastPersistedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// Store owns the workflow state. It is safe for concurrent use; every
// mutation is persisted before the call returns.
type Store struct {
	slot   Slot
	key    string
	policy Policy
	now    func() time.Time
	logger *slog.Logger

	mu              sync.Mutex
	current         Step
	completed       []Step
	plain           Artifacts
	binary          Artifacts
	processing      bool
	lastPersistedAt *time.Time
	segmentsPending bool
}

// New returns a Store holding default state. Nothing is read from slot until
// Load is called.
func New(slot Slot, opts ...Option) *Store {
	s := &Store{
		slot:    slot,
		key:     DefaultKey,
		now:     time.Now,
		logger:  logging.NewNop(),
		current: FirstStep,
		plain:   DefaultArtifacts(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = logging.NewComponentLogger(s.logger, "workflow").With(logging.String("state_key", s.key))
	return s
}

// Open is New followed by Load.
func Open(ctx context.Context, slot Slot, opts ...Option) *Store {
	s := New(slot, opts...)
	s.Load(ctx)
	return s
}

// Policy returns the access policy in effect.
func (s *Store) Policy() Policy { return s.policy }

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := State{
		CurrentStep:     s.current,
		CompletedSteps:  slices.Clone(s.completed),
		Artifacts:       s.viewLocked().clone(),
		IsProcessing:    s.processing,
		SegmentsPending: s.segmentsPending,
	}
	if state.CompletedSteps == nil {
		state.CompletedSteps = []Step{}
	}
	if s.lastPersistedAt != nil {
		at := *s.lastPersistedAt
		state.LastPersistedAt = &at
	}
	return state
}

// Artifacts returns the merged artifact view.
func (s *Store) Artifacts() Artifacts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked().clone()
}

func (s *Store) viewLocked() Artifacts {
	return s.plain.withBinary(s.binary)
}

// CanAccessStep reports whether step may be entered under the store's policy.
func (s *Store) CanAccessStep(step Step) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.allows(step, s.completed, s.viewLocked())
}

// SetCurrentStep moves to step. It does nothing when step is not accessible.
func (s *Store) SetCurrentStep(step Step) {
	s.JumpToStep(step)
}

// JumpToStep moves to step and reports whether the move happened.
func (s *Store) JumpToStep(step Step) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.policy.allows(step, s.completed, s.viewLocked()) {
		return false
	}
	s.enterLocked(step)
	s.saveLocked(context.Background())
	return true
}

// enterLocked applies the continuity rules for step and makes it current.
func (s *Store) enterLocked(step Step) {
	switch step {
	case StepTranslate:
		if s.plain.TranscriptionSRT != "" && s.plain.OriginalSRT == "" {
			s.plain.OriginalSRT = s.plain.TranscriptionSRT
		}
	case StepMerge:
		if s.plain.TranslatedSRT != "" && len(s.plain.TranslationSegments) == 0 {
			s.segmentsPending = true
		}
	}
	s.current = step
}

// CompleteStep marks step complete. Repeated calls are harmless.
func (s *Store) CompleteStep(step Step) {
	if !step.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completeLocked(step)
	s.saveLocked(context.Background())
}

func (s *Store) completeLocked(step Step) {
	i, found := slices.BinarySearch(s.completed, step)
	if !found {
		s.completed = slices.Insert(s.completed, i, step)
	}
}

// UpdateArtifacts applies updates in order. Binary fields go to the
// in-memory tier, the rest to the persisted tier. If any update is invalid
// none is applied and the error wraps ErrInvalidArtifact.
func (s *Store) UpdateArtifacts(updates ...ArtifactUpdate) error {
	for _, u := range updates {
		if err := u.Validate(); err != nil {
			return fmt.Errorf("update %s: %w", u.field, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		if u.field.Binary() {
			u.apply(&s.binary)
			continue
		}
		u.apply(&s.plain)
		if u.field == FieldTranslationSegments && len(s.plain.TranslationSegments) > 0 {
			s.segmentsPending = false
		}
	}
	s.saveLocked(context.Background())
	return nil
}

// SetProcessing toggles the busy flag.
func (s *Store) SetProcessing(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing == busy {
		return
	}
	s.processing = busy
	s.saveLocked(context.Background())
}

// TryBeginProcessing sets the busy flag and reports true, or reports false
// when it was already set.
func (s *Store) TryBeginProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return false
	}
	s.processing = true
	s.saveLocked(context.Background())
	return true
}

// IsProcessing reports the busy flag.
func (s *Store) IsProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// SegmentsPending reports that translated text exists without parsed
// segments and the consumer must derive them.
func (s *Store) SegmentsPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segmentsPending
}

// NextStep returns the successor of the current step.
func (s *Store) NextStep() (Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Next()
}

// CanProceedToNext reports whether ProceedToNext would succeed.
func (s *Store) CanProceedToNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nextLocked()
	return ok
}

func (s *Store) nextLocked() (Step, bool) {
	next, ok := s.current.Next()
	if !ok {
		return 0, false
	}
	view := s.viewLocked()
	if !StepSatisfied(s.current, view) || !s.policy.allows(next, s.completed, view) {
		return 0, false
	}
	return next, true
}

// ProceedToNext completes the current step and enters its successor. It
// returns false, changing nothing, when the current step's predicate does not
// hold or the successor is not accessible.
func (s *Store) ProceedToNext() (Step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := s.nextLocked()
	if !ok {
		return 0, false
	}
	s.completeLocked(s.current)
	s.enterLocked(next)
	s.saveLocked(context.Background())
	return next, true
}

// StepProgress returns the share of pipeline steps completed, 0-100.
func (s *Store) StepProgress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := 0
	for _, step := range s.completed {
		if step >= FirstStep {
			done++
		}
	}
	return float64(done) / float64(LastStep-FirstStep+1) * 100
}

// HasVideoArtifacts reports whether a source video is held in memory.
func (s *Store) HasVideoArtifacts() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binary.VideoFile != nil
}

// HasAudioArtifacts reports whether extracted or supplied audio is held in memory.
func (s *Store) HasAudioArtifacts() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.binary.ExtractedAudio) > 0 || s.binary.AudioFile != nil
}

// HasTranscriptionArtifacts reports whether transcription SRT text exists.
func (s *Store) HasTranscriptionArtifacts() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plain.TranscriptionSRT != ""
}

// HasTranslationArtifacts reports whether translated SRT text exists.
func (s *Store) HasTranslationArtifacts() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plain.TranslatedSRT != ""
}

// ResetWorkflow returns every field to its default, drops the binary tier and
// persists the empty workflow.
func (s *Store) ResetWorkflow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.saveLocked(context.Background())
}

func (s *Store) resetLocked() {
	s.current = FirstStep
	s.completed = nil
	s.plain = DefaultArtifacts()
	s.binary = Artifacts{}
	s.processing = false
	s.segmentsPending = false
}

func containsStep(steps []Step, step Step) bool {
	_, found := slices.BinarySearch(steps, step)
	return found
}
