// Package engine содержит примитивы выполнения workflow.
//
// Включает:
//   - parser.go   — валидация WorkflowRequest до выполнения
//   - context.go  — ExecutionContext: история шагов и выводы по именам
//   - template.go — подстановка ссылок {{step_name}}
//
// Engine не вызывает backend'ы и не знает про порядок выполнения:
// это делает orchestrator, используя примитивы отсюда.
package engine
