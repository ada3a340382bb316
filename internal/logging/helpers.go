package logging

import "time"

// Category convenience helpers. These keep call sites short:
// logging.Plan("saved %s", id) instead of logging.Get(...).Info(...).

func Plan(format string, args ...interface{})      { Get(CategoryPlan).Info(format, args...) }
func PlanDebug(format string, args ...interface{}) { Get(CategoryPlan).Debug(format, args...) }
func PlanWarn(format string, args ...interface{})  { Get(CategoryPlan).Warn(format, args...) }
func PlanError(format string, args ...interface{}) { Get(CategoryPlan).Error(format, args...) }

func Decompose(format string, args ...interface{})      { Get(CategoryDecompose).Info(format, args...) }
func DecomposeDebug(format string, args ...interface{}) { Get(CategoryDecompose).Debug(format, args...) }
func DecomposeWarn(format string, args ...interface{})  { Get(CategoryDecompose).Warn(format, args...) }

func Similarity(format string, args ...interface{})      { Get(CategorySimilarity).Info(format, args...) }
func SimilarityDebug(format string, args ...interface{}) { Get(CategorySimilarity).Debug(format, args...) }

func Schedule(format string, args ...interface{})      { Get(CategorySchedule).Info(format, args...) }
func ScheduleDebug(format string, args ...interface{}) { Get(CategorySchedule).Debug(format, args...) }
func ScheduleWarn(format string, args ...interface{})  { Get(CategorySchedule).Warn(format, args...) }

func Exec(format string, args ...interface{})      { Get(CategoryExec).Info(format, args...) }
func ExecDebug(format string, args ...interface{}) { Get(CategoryExec).Debug(format, args...) }
func ExecWarn(format string, args ...interface{})  { Get(CategoryExec).Warn(format, args...) }
func ExecError(format string, args ...interface{}) { Get(CategoryExec).Error(format, args...) }

func Sandbox(format string, args ...interface{})      { Get(CategorySandbox).Info(format, args...) }
func SandboxDebug(format string, args ...interface{}) { Get(CategorySandbox).Debug(format, args...) }
func SandboxWarn(format string, args ...interface{})  { Get(CategorySandbox).Warn(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

func Workspace(format string, args ...interface{})      { Get(CategoryWorkspace).Info(format, args...) }
func WorkspaceDebug(format string, args ...interface{}) { Get(CategoryWorkspace).Debug(format, args...) }

func Queue(format string, args ...interface{})      { Get(CategoryQueue).Info(format, args...) }
func QueueDebug(format string, args ...interface{}) { Get(CategoryQueue).Debug(format, args...) }
func QueueWarn(format string, args ...interface{})  { Get(CategoryQueue).Warn(format, args...) }

func Oracle(format string, args ...interface{})      { Get(CategoryOracle).Info(format, args...) }
func OracleDebug(format string, args ...interface{}) { Get(CategoryOracle).Debug(format, args...) }
func OracleWarn(format string, args ...interface{})  { Get(CategoryOracle).Warn(format, args...) }

func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level.
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
