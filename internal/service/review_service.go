package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/model"
	"golang.org/x/sync/errgroup"
)

// ErrReviewDisabled is returned when a student asks for a result the quiz
// does not release to them.
var ErrReviewDisabled = errors.New("result review is not available for this quiz")

// StudentIntegrity is the attempt log of one student for the teacher view.
type StudentIntegrity struct {
	StudentID     string                 `json:"student_id"`
	StudentName   string                 `json:"student_name"`
	WorstSeverity model.Severity         `json:"worst_severity"`
	Attempts      []model.LabeledAttempt `json:"attempts"`
}

// ReviewService builds post-hoc review read models.
type ReviewService struct {
	quizzes  *QuizService
	results  ResultStore
	students StudentDirectory
	log      zerolog.Logger
	now      func() time.Time
}

// NewReviewService creates a new ReviewService.
func NewReviewService(quizzes *QuizService, results ResultStore, students StudentDirectory, log zerolog.Logger) *ReviewService {
	return &ReviewService{
		quizzes:  quizzes,
		results:  results,
		students: students,
		log:      log.With().Str("component", "review_service").Logger(),
		now:      time.Now,
	}
}

// QuizResults returns one row per student who submitted or was flagged,
// using the latest record of each student.
func (s *ReviewService) QuizResults(ctx context.Context, quizID string) ([]model.ResultRow, error) {
	var (
		quiz    *model.Quiz
		results []model.QuizResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quiz, err = s.quizzes.Load(gctx, quizID)
		return err
	})
	g.Go(func() error {
		var err error
		results, err = s.results.ListByQuiz(gctx, quizID)
		if err != nil {
			return fmt.Errorf("list results: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byUser := make(map[string][]model.QuizResult)
	for _, r := range results {
		byUser[r.UserID] = append(byUser[r.UserID], r)
	}
	for sid := range quiz.CheatingAttempts {
		if _, ok := byUser[sid]; !ok {
			byUser[sid] = nil
		}
	}

	ids := make([]string, 0, len(byUser))
	for uid := range byUser {
		ids = append(ids, uid)
	}
	names := s.lookupNames(ctx, ids)

	rows := make([]model.ResultRow, 0, len(byUser))
	for uid, list := range byUser {
		row := model.ResultRow{
			UserID:      uid,
			StudentName: names[uid].DisplayName(),
			TotalPoints: quiz.Points,
			Percentage:  NotAvailableText,
		}
		if latest, ok := LatestResult(list); ok {
			row.Score = latest.Score
			row.TotalPoints = latest.TotalPoints
			row.Percentage = FormatPercentage(latest.Score, latest.TotalPoints)
			row.Completed = latest.Completed
			row.SubmittedAt = latest.Timestamp
			row.TotalTimeSpent = latest.TotalTimeSpent
		}
		attempts := AttemptsFor(quiz.CheatingAttempts, uid)
		row.AttemptCount = len(attempts)
		row.HasCheating = HasCheating(quiz.CheatingAttempts, uid)
		row.WorstSeverity = WorstSeverity(attempts)
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StudentName != rows[j].StudentName {
			return rows[i].StudentName < rows[j].StudentName
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows, nil
}

// StudentResult returns the per-question breakdown of a student's latest
// result together with their labelled attempts.
func (s *ReviewService) StudentResult(ctx context.Context, quizID, userID string) (*model.ResultDetail, error) {
	var (
		quiz    *model.Quiz
		results []model.QuizResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quiz, err = s.quizzes.Load(gctx, quizID)
		return err
	})
	g.Go(func() error {
		var err error
		results, err = s.results.ListByQuizAndUser(gctx, quizID, userID)
		if err != nil {
			return fmt.Errorf("list results: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	attempts := AttemptsFor(quiz.CheatingAttempts, userID)
	latest, ok := LatestResult(results)
	if !ok && len(attempts) == 0 {
		return nil, ErrResultNotFound
	}

	names := s.lookupNames(ctx, []string{userID})
	detail := &model.ResultDetail{
		QuizID:      quiz.ID,
		QuizTitle:   quiz.Title,
		HasResult:   ok,
		AllowReview: quiz.AllowReview,
		Attempts:    LabelAttempts(attempts),
		Result: model.ResultRow{
			UserID:        userID,
			StudentName:   names[userID].DisplayName(),
			TotalPoints:   quiz.Points,
			Percentage:    NotAvailableText,
			AttemptCount:  len(attempts),
			HasCheating:   len(attempts) > 0,
			WorstSeverity: WorstSeverity(attempts),
		},
	}

	if ok {
		detail.Result.Score = latest.Score
		detail.Result.TotalPoints = latest.TotalPoints
		detail.Result.Percentage = FormatPercentage(latest.Score, latest.TotalPoints)
		detail.Result.Completed = latest.Completed
		detail.Result.SubmittedAt = latest.Timestamp
		detail.Result.TotalTimeSpent = latest.TotalTimeSpent
	}
	detail.Questions, detail.Unmatched = BreakdownAnswers(quiz, latest.Answers)
	return detail, nil
}

// OwnResult is the student view of their latest result. It is released only
// when the quiz allows review and its results are visible; the integrity
// log is never included.
func (s *ReviewService) OwnResult(ctx context.Context, quizID, userID string) (*model.ResultDetail, error) {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !quiz.AllowReview || !quiz.ResultsVisible(s.now()) {
		return nil, ErrReviewDisabled
	}

	detail, err := s.StudentResult(ctx, quizID, userID)
	if err != nil {
		return nil, err
	}
	if !detail.HasResult {
		return nil, ErrResultNotFound
	}

	detail.Attempts = nil
	detail.Result.AttemptCount = 0
	detail.Result.HasCheating = false
	detail.Result.WorstSeverity = model.SeverityNone
	return detail, nil
}

// Integrity lists the attempt log of every flagged student.
func (s *ReviewService) Integrity(ctx context.Context, quizID string) ([]StudentIntegrity, error) {
	quiz, err := s.quizzes.Load(ctx, quizID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(quiz.CheatingAttempts))
	for sid := range quiz.CheatingAttempts {
		ids = append(ids, sid)
	}
	names := s.lookupNames(ctx, ids)

	out := make([]StudentIntegrity, 0, len(ids))
	for _, sid := range ids {
		seq := quiz.CheatingAttempts[sid]
		out = append(out, StudentIntegrity{
			StudentID:     sid,
			StudentName:   names[sid].DisplayName(),
			WorstSeverity: WorstSeverity(seq),
			Attempts:      LabelAttempts(seq),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if r1, r2 := out[i].WorstSeverity.Rank(), out[j].WorstSeverity.Rank(); r1 != r2 {
			return r1 > r2
		}
		return out[i].StudentName < out[j].StudentName
	})
	return out, nil
}

// BreakdownAnswers grades each question for display. Answers keyed by ids
// the quiz does not contain are returned separately.
func BreakdownAnswers(quiz *model.Quiz, answers map[string]model.Answer) ([]model.QuestionReview, []model.UnmatchedAnswer) {
	reviews := make([]model.QuestionReview, 0, len(quiz.Questions))
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		ans := answers[q.ID]
		verdict := IsCorrect(q, ans)

		awarded := 0
		if verdict == Correct {
			awarded = q.Points
		}
		reviews = append(reviews, model.QuestionReview{
			QuestionID:    q.ID,
			Type:          q.Type,
			Text:          q.Text,
			Points:        q.Points,
			Answer:        RenderAnswer(q, ans),
			CorrectAnswer: RenderCorrectAnswer(q),
			IsCorrect:     verdict.Bool(),
			Awarded:       awarded,
		})
	}

	var unmatched []model.UnmatchedAnswer
	for qid, ans := range answers {
		if _, ok := quiz.Question(qid); ok {
			continue
		}
		unmatched = append(unmatched, model.UnmatchedAnswer{QuestionID: qid, Answer: ans.String()})
	}
	sort.Slice(unmatched, func(i, j int) bool { return unmatched[i].QuestionID < unmatched[j].QuestionID })
	return reviews, unmatched
}

// lookupNames never fails; a directory error leaves every name unresolved.
func (s *ReviewService) lookupNames(ctx context.Context, ids []string) map[string]*model.Student {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.students.GetByIDs(ctx, ids)
	if err != nil {
		s.log.Warn().Err(err).Int("count", len(ids)).Msg("Student lookup failed, using placeholder names")
		return nil
	}
	return found
}
