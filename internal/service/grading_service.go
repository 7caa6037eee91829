package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"github.com/noah-isme/dsa-autograder/internal/dto"
	"github.com/noah-isme/dsa-autograder/internal/middleware"
	"github.com/noah-isme/dsa-autograder/internal/models"
	"github.com/noah-isme/dsa-autograder/internal/observability"
	"github.com/noah-isme/dsa-autograder/internal/repository"
	"github.com/noah-isme/dsa-autograder/pkg/ai"
	"github.com/noah-isme/dsa-autograder/pkg/archive"
	dockerexec "github.com/noah-isme/dsa-autograder/pkg/docker"
)

var (
	// ErrInvalidGradeRequest indicates the request failed validation.
	ErrInvalidGradeRequest = errors.New("invalid grading request")
	// ErrFileTypeNotAllowed indicates an upload that is not .py, .zip or .rar.
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	// ErrNoValidFiles indicates nothing gradable was uploaded.
	ErrNoValidFiles = errors.New("no valid python files in submission")
	// ErrUploadTooLarge indicates a file above the upload limit.
	ErrUploadTooLarge = errors.New("uploaded file too large")
	// ErrInvalidCallbackURL indicates a callback that is not an absolute http(s) URL.
	ErrInvalidCallbackURL = errors.New("callback_url must be an absolute http(s) URL")
)

const (
	// DefaultStudentName is used when the form omits student_name.
	DefaultStudentName = "An danh"
	// AnonymousStudentID is stored when no id can be parsed from student_name.
	AnonymousStudentID = "anonymous"
)

// SourceRunner executes a Python source file and reports its output.
type SourceRunner interface {
	RunPython(ctx context.Context, source string) (dockerexec.RunOutcome, error)
}

// UploadArchiver keeps a copy of the raw upload.
type UploadArchiver interface {
	ArchiveUpload(ctx context.Context, jobID, filename string, data []byte) (string, error)
}

// GradingService accepts submissions and grades them in the background.
type GradingService interface {
	Accept(ctx context.Context, req dto.GradeRequest) (dto.JobAcceptedResponse, error)
	Job(ctx context.Context, jobID string) (models.GradingJob, error)
	Wait(ctx context.Context) error
}

// GradingConfig tunes the pipeline.
type GradingConfig struct {
	PassThreshold        int
	MaxUploadBytes       int64
	AITimeout            time.Duration
	MaxConcurrentAICalls int
	ArchiveTimeout       time.Duration
	// PlagiarismThreshold is the Jaccard similarity above which two files
	// of one batch are flagged as duplicates.
	PlagiarismThreshold float64
}

// GradingDependencies wires the collaborators of the grading service. Runner,
// Archiver, Webhook and Events are optional.
type GradingDependencies struct {
	Jobs      JobStore
	Records   repository.SubmissionRecordRepository
	Rubrics   RubricProvider
	Evaluator ai.Evaluator
	Expander  *archive.Expander
	Runner    SourceRunner
	Archiver  UploadArchiver
	Webhook   WebhookNotifier
	Events    JobEventPublisher
	Validator *validator.Validate
	Logger    zerolog.Logger
}

type gradingService struct {
	deps      GradingDependencies
	cfg       GradingConfig
	aiSlots   *semaphore.Weighted
	sanitizer *bluemonday.Policy
	inflight  sync.WaitGroup
	tracer    trace.Tracer
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// NewGradingService builds the orchestrator. The AI semaphore is shared by every job it runs.
func NewGradingService(deps GradingDependencies, cfg GradingConfig) GradingService {
	if cfg.PassThreshold <= 0 {
		cfg.PassThreshold = 50
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 * 1024 * 1024
	}
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = 60 * time.Second
	}
	if cfg.MaxConcurrentAICalls <= 0 {
		cfg.MaxConcurrentAICalls = 50
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = 30 * time.Second
	}
	if cfg.PlagiarismThreshold <= 0 || cfg.PlagiarismThreshold > 1 {
		cfg.PlagiarismThreshold = 0.85
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Expander == nil {
		deps.Expander = archive.NewExpander(0)
	}
	if deps.Evaluator == nil {
		deps.Evaluator = ai.NewFallbackEvaluator()
	}

	return &gradingService{
		deps:      deps,
		cfg:       cfg,
		aiSlots:   semaphore.NewWeighted(int64(cfg.MaxConcurrentAICalls)),
		sanitizer: bluemonday.StrictPolicy(),
		tracer:    otel.Tracer("github.com/noah-isme/dsa-autograder/internal/service/grading"),
		logger:    deps.Logger.With().Str("component", "grading_service").Logger(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// submission is the accepted request carried into the background task.
type submission struct {
	jobID          string
	studentID      string
	studentName    string
	topic          string
	assignmentCode string
	callbackURL    string
	uploads        []dto.UploadedFile
	units          []gradingUnit
	submittedAt    time.Time
	correlationID  string
}

// gradingUnit is one Python file to grade, or a degraded upload.
type gradingUnit struct {
	upload     int
	filename   string
	source     string
	sourceURL  string
	degraded   error
	duplicates []string
}

func (s *gradingService) Accept(ctx context.Context, req dto.GradeRequest) (dto.JobAcceptedResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.accept", trace.WithAttributes(attribute.Int("files", len(req.Files))))
	defer span.End()

	req.CallbackURL = strings.TrimSpace(req.CallbackURL)
	if err := s.validate(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return dto.JobAcceptedResponse{}, err
	}

	uploads := make([]dto.UploadedFile, 0, len(req.Files))
	for _, file := range req.Files {
		if _, ok := archive.KindOf(file.Filename); !ok {
			return dto.JobAcceptedResponse{}, fmt.Errorf("%s: %w", file.Filename, ErrFileTypeNotAllowed)
		}
		if int64(len(file.Data)) > s.cfg.MaxUploadBytes {
			return dto.JobAcceptedResponse{}, fmt.Errorf("%s: %w", file.Filename, ErrUploadTooLarge)
		}
		if len(file.Data) == 0 {
			continue
		}
		uploads = append(uploads, file)
	}
	units := s.expand(uploads)
	if !hasGradableUnit(units) {
		span.SetStatus(codes.Error, ErrNoValidFiles.Error())
		return dto.JobAcceptedResponse{}, ErrNoValidFiles
	}

	studentID, studentName := ParseStudent(req.StudentName)
	label := strings.TrimSpace(req.StudentName)
	if label == "" {
		label = DefaultStudentName
	}

	job := models.GradingJob{
		ID:        s.newID(),
		Status:    models.JobStatusProcessing,
		Student:   label,
		FileCount: len(units),
		CreatedAt: s.now().UTC(),
	}
	if err := s.deps.Jobs.Create(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.JobAcceptedResponse{}, fmt.Errorf("register job: %w", err)
	}
	observability.GradingJobs().WithLabelValues("accepted").Inc()

	sub := submission{
		jobID:          job.ID,
		studentID:      studentID,
		studentName:    studentName,
		topic:          strings.TrimSpace(req.Topic),
		assignmentCode: strings.TrimSpace(req.AssignmentCode),
		callbackURL:    req.CallbackURL,
		uploads:        uploads,
		units:          units,
		submittedAt:    job.CreatedAt,
		correlationID:  middleware.CorrelationIDFromContext(ctx),
	}

	s.inflight.Add(1)
	go s.run(sub)

	s.logger.Info().
		Str("job_id", job.ID).
		Str("student_id", studentID).
		Int("files", len(units)).
		Msg("grading job accepted")

	response := dto.JobAcceptedResponse{
		JobID:   job.ID,
		Status:  "accepted",
		Message: fmt.Sprintf("Processing %d file(s)...", len(units)),
	}
	if req.CallbackURL != "" {
		callback := req.CallbackURL
		response.CallbackURL = &callback
	}
	return response, nil
}

func (s *gradingService) validate(req dto.GradeRequest) error {
	if len(req.Files) == 0 {
		return ErrNoValidFiles
	}

	err := s.deps.Validator.Struct(req)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, fieldErr := range validationErrs {
			if fieldErr.Field() == "CallbackURL" {
				return ErrInvalidCallbackURL
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidGradeRequest, err)
}

func (s *gradingService) Job(ctx context.Context, jobID string) (models.GradingJob, error) {
	return s.deps.Jobs.Get(ctx, jobID)
}

// Wait blocks until running jobs finish or ctx is done.
func (s *gradingService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the detached background task. It never uses the request context.
func (s *gradingService) run(sub submission) {
	defer s.inflight.Done()

	ctx := middleware.ContextWithCorrelation(context.Background(), sub.correlationID)
	observability.JobsInFlight().Inc()
	defer observability.JobsInFlight().Dec()

	logger := s.logger.With().Str("job_id", sub.jobID).Str("correlation_id", sub.correlationID).Logger()

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error().Interface("panic", recovered).Bytes("stack", debug.Stack()).Msg("grading job panicked")
			s.failJob(ctx, sub.jobID, fmt.Sprintf("internal error while grading: %v", recovered))
		}
	}()

	result, err := s.grade(ctx, sub)
	if err != nil {
		logger.Error().Err(err).Msg("grading job failed")
		s.failJob(ctx, sub.jobID, err.Error())
		return
	}

	job, err := s.deps.Jobs.Complete(ctx, sub.jobID, result)
	if err != nil {
		logger.Error().Err(err).Msg("failed to publish completed job")
		return
	}
	observability.GradingJobs().WithLabelValues(models.JobStatusCompleted).Inc()

	logger.Info().
		Int("files", result.Summary.TotalFiles).
		Int("saved", result.Summary.SavedToDB).
		Str("elapsed", result.Summary.TotalTime).
		Msg("grading job completed")

	s.publish(ctx, job)

	if sub.callbackURL != "" && s.deps.Webhook != nil {
		if err := s.deps.Webhook.Notify(ctx, sub.callbackURL, sub.jobID, result); err != nil {
			logger.Warn().Err(err).Str("callback_url", sub.callbackURL).Msg("webhook not delivered")
		}
	}
}

func (s *gradingService) failJob(ctx context.Context, jobID, message string) {
	job, err := s.deps.Jobs.Fail(ctx, jobID, message)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to mark job failed")
		return
	}
	observability.GradingJobs().WithLabelValues(models.JobStatusFailed).Inc()
	s.publish(ctx, job)
}

func (s *gradingService) publish(ctx context.Context, job models.GradingJob) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.PublishJob(ctx, job); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to publish job event")
	}
}

func (s *gradingService) grade(ctx context.Context, sub submission) (models.JobResult, error) {
	start := s.now()

	units := s.prepareUnits(ctx, sub)
	results := make([]models.FileResult, len(units))
	saved := make([]bool, len(units))
	rubrics := newRubricMemo(s.deps.Rubrics)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.MaxConcurrentAICalls)

	for i, unit := range units {
		i, unit := i, unit
		group.Go(func() (err error) {
			defer func() {
				if recovered := recover(); recovered != nil {
					err = fmt.Errorf("grading %s panicked: %v", unit.filename, recovered)
				}
			}()
			results[i], saved[i] = s.gradeUnit(groupCtx, sub, unit, rubrics)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return models.JobResult{}, err
	}

	return models.JobResult{
		Summary: Summarize(results, saved, s.now().Sub(start)),
		Results: results,
	}, nil
}

// expand unpacks every upload. Uploads without Python source are dropped;
// unreadable archives become degraded units.
func (s *gradingService) expand(uploads []dto.UploadedFile) []gradingUnit {
	units := make([]gradingUnit, 0, len(uploads))
	for i, upload := range uploads {
		files, err := s.deps.Expander.Expand(upload.Filename, upload.Data)
		switch {
		case errors.Is(err, archive.ErrNoSourceFiles):
			s.logger.Debug().Str("filename", upload.Filename).Msg("upload has no python source, skipped")
		case err != nil:
			s.logger.Warn().Err(err).Str("filename", upload.Filename).Msg("upload could not be expanded")
			units = append(units, gradingUnit{upload: i, filename: upload.Filename, degraded: err})
		default:
			for _, file := range files {
				units = append(units, gradingUnit{upload: i, filename: file.Name, source: file.Content})
			}
		}
	}
	return units
}

func hasGradableUnit(units []gradingUnit) bool {
	for _, unit := range units {
		if unit.degraded == nil {
			return true
		}
	}
	return false
}

// prepareUnits archives the raw uploads and marks near-duplicate files of the batch.
func (s *gradingService) prepareUnits(ctx context.Context, sub submission) []gradingUnit {
	units := make([]gradingUnit, len(sub.units))
	copy(units, sub.units)

	sourceURLs := make(map[int]string, len(sub.uploads))
	sources := make([]string, len(units))
	for i := range units {
		idx := units[i].upload
		if _, done := sourceURLs[idx]; !done {
			sourceURLs[idx] = s.archiveUpload(ctx, sub.jobID, sub.uploads[idx])
		}
		units[i].sourceURL = sourceURLs[idx]
		sources[i] = units[i].source
	}

	for _, pair := range FindSimilar(sources, s.cfg.PlagiarismThreshold) {
		first, second := &units[pair.First], &units[pair.Second]
		pct := math.Round(pair.Similarity * 100)
		first.duplicates = append(first.duplicates, fmt.Sprintf("possible duplicate: %.0f%% similar to %s", pct, second.filename))
		second.duplicates = append(second.duplicates, fmt.Sprintf("possible duplicate: %.0f%% similar to %s", pct, first.filename))
		s.logger.Warn().
			Str("job_id", sub.jobID).
			Str("first", first.filename).
			Str("second", second.filename).
			Float64("similarity", pair.Similarity).
			Msg("near-duplicate submissions in batch")
	}
	return units
}

func (s *gradingService) archiveUpload(ctx context.Context, jobID string, upload dto.UploadedFile) string {
	if s.deps.Archiver == nil {
		return ""
	}
	archiveCtx, cancel := context.WithTimeout(ctx, s.cfg.ArchiveTimeout)
	defer cancel()

	url, err := s.deps.Archiver.ArchiveUpload(archiveCtx, jobID, upload.Filename, upload.Data)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Str("filename", upload.Filename).Msg("upload archival failed")
		return ""
	}
	return url
}

func (s *gradingService) gradeUnit(ctx context.Context, sub submission, unit gradingUnit, rubrics *rubricMemo) (models.FileResult, bool) {
	ctx, span := s.tracer.Start(ctx, "grading.file", trace.WithAttributes(attribute.String("filename", unit.filename)))
	defer span.End()

	start := s.now()
	logger := s.logger.With().Str("job_id", sub.jobID).Str("filename", unit.filename).Logger()

	if unit.degraded != nil {
		span.RecordError(unit.degraded)
		result := models.FileResult{
			Filename:   unit.filename,
			Status:     models.SubmissionStatusFlag,
			Algorithms: "N/A",
			Reasoning:  "The upload could not be unpacked and was not graded.",
			Notes:      []string{unit.degraded.Error()},
			Error:      unit.degraded.Error(),
		}
		return s.persist(ctx, sub, unit, result, start, logger)
	}

	key := RubricKey(sub.assignmentCode, sub.topic, unit.filename)
	rubric, err := rubrics.lookup(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Str("rubric_key", key).Msg("rubric lookup failed, grading without rubric")
		rubric = nil
	}
	hasRubric := rubric.IsUsable()

	input := ai.EvaluationInput{
		Filename:       unit.filename,
		Topic:          sub.topic,
		AssignmentCode: sub.assignmentCode,
		SourceCode:     unit.source,
		HasRubric:      hasRubric,
	}
	if hasRubric {
		input.RubricTitle = rubric.Title
		input.RubricRequirements = rubric.Requirements
		input.RubricCriteria = rubric.CriteriaText()
	}

	var notes []string
	if s.deps.Runner != nil {
		outcome, runErr := s.deps.Runner.RunPython(ctx, unit.source)
		if runErr != nil {
			logger.Warn().Err(runErr).Msg("sandbox run failed")
			notes = append(notes, "sandbox run unavailable")
		} else {
			input.ProgramOutput = outcome.Output
			runtime := outcome.RuntimeMs
			input.RuntimeMs = &runtime
			if outcome.TimedOut {
				notes = append(notes, "program exceeded the execution time limit")
			}
		}
	}

	evaluation, evalErr := s.evaluate(ctx, input)
	if evalErr != nil {
		span.RecordError(evalErr)
		logger.Warn().Err(evalErr).Msg("evaluation failed, result left pending")
		result := models.FileResult{
			Filename:   unit.filename,
			Status:     models.SubmissionStatusPending,
			HasRubric:  hasRubric,
			Algorithms: "N/A",
			Reasoning:  "Automatic review is temporarily unavailable; the submission will need manual review.",
			Notes:      append(notes, evalErr.Error()),
			AIScored:   false,
			RuntimeMs:  input.RuntimeMs,
			Error:      evalErr.Error(),
		}
		return s.persist(ctx, sub, unit, markDuplicates(result, unit), start, logger)
	}

	status, total, breakdown := Classify(hasRubric, evaluation, s.cfg.PassThreshold)
	notes = append(notes, evaluation.Notes...)
	if !hasRubric {
		notes = append(notes, "rubric not yet published for this assignment")
	}

	result := models.FileResult{
		Filename:           unit.filename,
		Status:             status,
		TotalScore:         total,
		Breakdown:          breakdown,
		HasRubric:          hasRubric,
		Algorithms:         s.clean(evaluation.DetectedAlgorithm),
		Strengths:          s.clean(evaluation.Strengths),
		Weaknesses:         s.clean(evaluation.Weaknesses),
		Reasoning:          s.clean(evaluation.Reasoning),
		Improvement:        s.clean(evaluation.Improvement),
		ComplexityAnalysis: s.clean(evaluation.ComplexityAnalysis),
		Notes:              s.cleanAll(notes),
		AIScored:           evaluation.AIScored,
		RuntimeMs:          input.RuntimeMs,
	}
	if result.Algorithms == "" {
		result.Algorithms = "N/A"
	}

	return s.persist(ctx, sub, unit, markDuplicates(result, unit), start, logger)
}

// evaluate calls the evaluator under the shared concurrency cap and the per-call timeout.
func (s *gradingService) evaluate(ctx context.Context, input ai.EvaluationInput) (ai.EvaluationResult, error) {
	if err := s.aiSlots.Acquire(ctx, 1); err != nil {
		return ai.EvaluationResult{}, fmt.Errorf("wait for evaluation slot: %w", err)
	}
	defer s.aiSlots.Release(1)

	evalCtx, cancel := context.WithTimeout(ctx, s.cfg.AITimeout)
	defer cancel()

	start := time.Now()
	result, err := s.deps.Evaluator.Evaluate(evalCtx, input)
	outcome := "ok"
	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded)):
		outcome = "timeout"
		err = fmt.Errorf("evaluation timed out after %s", s.cfg.AITimeout)
	case err != nil:
		outcome = "error"
		err = fmt.Errorf("evaluation failed: %w", err)
	}
	observability.EvaluationDuration().WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	return result, err
}

func (s *gradingService) persist(ctx context.Context, sub submission, unit gradingUnit, result models.FileResult, start time.Time, logger zerolog.Logger) (models.FileResult, bool) {
	if result.Notes == nil {
		result.Notes = []string{}
	}
	observability.GradingFiles().WithLabelValues(result.Status).Inc()

	if s.deps.Records == nil {
		return result, false
	}

	record := models.SubmissionRecord{
		JobID:              sub.jobID,
		StudentID:          sub.studentID,
		StudentName:        sub.studentName,
		AssignmentCode:     sub.assignmentCode,
		Topic:              sub.topic,
		Filename:           unit.filename,
		TotalScore:         result.TotalScore,
		DetectedAlgorithm:  result.Algorithms,
		Status:             result.Status,
		Feedback:           result.Reasoning,
		Strengths:          result.Strengths,
		Weaknesses:         result.Weaknesses,
		Improvement:        result.Improvement,
		ComplexityAnalysis: result.ComplexityAnalysis,
		Notes:              datatypes.JSONSlice[string](result.Notes),
		AIScored:           result.AIScored,
		RuntimeMs:          result.RuntimeMs,
		SourceURL:          unit.sourceURL,
		ProcessingMs:       s.now().Sub(start).Milliseconds(),
		SubmittedAt:        sub.submittedAt,
	}
	if result.Breakdown != nil {
		record.StyleScore = intPtr(result.Breakdown.StyleScore)
		record.AlgorithmScore = intPtr(result.Breakdown.AlgorithmScore)
		record.ComplexityScore = intPtr(result.Breakdown.ComplexityScore)
		record.TestScore = intPtr(result.Breakdown.TestScore)
	}
	if !result.IsDegraded() {
		graded := s.now().UTC()
		record.GradedAt = &graded
	}

	if err := s.deps.Records.Create(ctx, &record); err != nil {
		logger.Error().Err(err).Msg("failed to persist submission record")
		return result, false
	}

	id := record.ID
	result.RecordID = &id
	return result, true
}

// markDuplicates flags a result whose source closely matches another file of the batch.
func markDuplicates(result models.FileResult, unit gradingUnit) models.FileResult {
	if len(unit.duplicates) == 0 {
		return result
	}
	result.Status = models.SubmissionStatusFlag
	result.Notes = append(result.Notes, unit.duplicates...)
	return result
}

func (s *gradingService) clean(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(text)))
}

func (s *gradingService) cleanAll(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		if v := s.clean(value); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	return cleaned
}

// Classify maps an evaluation to a status. Without a rubric nothing is scored.
func Classify(hasRubric bool, evaluation ai.EvaluationResult, passThreshold int) (string, *int, *models.ScoreBreakdown) {
	if !hasRubric {
		return models.SubmissionStatusPending, nil, nil
	}

	var breakdown *models.ScoreBreakdown
	if evaluation.Breakdown != nil && evaluation.TotalScore != nil {
		breakdown = &models.ScoreBreakdown{
			StyleScore:      evaluation.Breakdown.StyleScore,
			AlgorithmScore:  evaluation.Breakdown.AlgorithmScore,
			ComplexityScore: evaluation.Breakdown.ComplexityScore,
			TestScore:       evaluation.Breakdown.TestScore,
		}
	}

	var total *int
	if evaluation.TotalScore != nil {
		value := *evaluation.TotalScore
		total = &value
	}

	switch {
	case evaluation.Anomaly:
		return models.SubmissionStatusFlag, total, breakdown
	case total == nil:
		return models.SubmissionStatusPending, nil, nil
	case *total >= passThreshold:
		return models.SubmissionStatusPass, total, breakdown
	default:
		return models.SubmissionStatusFail, total, breakdown
	}
}

// Summarize aggregates per-file results. The average covers scored files only.
func Summarize(results []models.FileResult, saved []bool, elapsed time.Duration) models.JobSummary {
	summary := models.JobSummary{
		TotalFiles: len(results),
		TotalTime:  fmt.Sprintf("%.1fs", elapsed.Seconds()),
	}

	var (
		sum    int
		scored int
	)
	for i, result := range results {
		if i < len(saved) && saved[i] {
			summary.SavedToDB++
		}
		if result.TotalScore != nil {
			sum += *result.TotalScore
			scored++
		}
		switch result.Status {
		case models.SubmissionStatusPass:
			summary.Passed++
		case models.SubmissionStatusFail:
			summary.Failed++
		case models.SubmissionStatusFlag:
			summary.Flagged++
		default:
			summary.Pending++
		}
	}

	if scored > 0 {
		avg := math.Round(float64(sum)/float64(scored)*10) / 10
		summary.AvgScore = &avg
	}
	return summary
}

// ParseStudent splits "<id> - <name>" into its parts.
func ParseStudent(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AnonymousStudentID, DefaultStudentName
	}

	if id, name, found := strings.Cut(raw, " - "); found {
		id = strings.TrimSpace(id)
		name = strings.TrimSpace(name)
		if id != "" {
			if name == "" {
				name = DefaultStudentName
			}
			return id, name
		}
		if name != "" {
			return AnonymousStudentID, name
		}
	}

	return AnonymousStudentID, raw
}

func intPtr(v int) *int {
	return &v
}

// rubricMemo dedupes rubric lookups within one job.
type rubricMemo struct {
	provider RubricProvider
	group    singleflight.Group
	mu       sync.Mutex
	results  map[string]*models.Rubric
}

func newRubricMemo(provider RubricProvider) *rubricMemo {
	return &rubricMemo{provider: provider, results: make(map[string]*models.Rubric)}
}

func (m *rubricMemo) lookup(ctx context.Context, key string) (*models.Rubric, error) {
	if m.provider == nil || key == "" {
		return nil, nil
	}

	m.mu.Lock()
	if rubric, ok := m.results[key]; ok {
		m.mu.Unlock()
		return rubric, nil
	}
	m.mu.Unlock()

	value, err, _ := m.group.Do(key, func() (interface{}, error) {
		m.mu.Lock()
		cached, ok := m.results[key]
		m.mu.Unlock()
		if ok {
			return cached, nil
		}

		rubric, err := m.provider.Lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.results[key] = rubric
		m.mu.Unlock()
		return rubric, nil
	})
	if err != nil {
		return nil, err
	}
	rubric, _ := value.(*models.Rubric)
	return rubric, nil
}
