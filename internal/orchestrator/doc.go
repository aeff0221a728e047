// Package orchestrator выполняет workflow.
//
// Engine отвечает за:
//   - Валидацию WorkflowRequest до выполнения
//   - Последовательный запуск шагов: resolve → invoke → propagate
//   - Политику ошибок (abort по умолчанию, continue по запросу или шагу)
//   - Переходы состояния run (PENDING → RUNNING → COMPLETED/ABORTED)
//   - Сборку WorkflowResult
//
// Каждый run получает собственный ExecutionContext, поэтому несколько
// runs могут выполняться одним Engine параллельно.
package orchestrator
