// Package worker выполняет workflow, поставленные в очередь через ?async=true.
//
// Жизненный цикл run:
//
//  1. API сохраняет run в статусе PENDING и публикует workflow.submitted
//  2. Worker получает сообщение (или находит run при polling)
//  3. RunStore.Claim атомарно переводит run в RUNNING
//  4. Runner выполняет шаги; итог сохраняется через RunStore.Update
//  5. Notifier публикует workflow.finished
//
// Ошибки обработки сообщения возвращают его в очередь. Битое сообщение
// и ссылка на несуществующий run уходят в DLQ.
package worker
