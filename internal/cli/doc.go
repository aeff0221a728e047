// Package cli реализует инструмент командной строки Relay.
//
// CLI работает через HTTP API и не импортирует внутренние пакеты.
//
// Команды:
//   - workflow run -f FILE [--async] — выполнить workflow из JSON файла
//   - backend list | refresh | test PROMPT — реестр и диагностические вызовы
//   - run list | show ID — журнал runs
//
// Каждая группа создаётся фабрикой (NewWorkflowCmd и т.д.), принимающей
// clientFn и outputFn — замыкания для ленивого создания Client и Output
// после парсинга PersistentFlags. Данные выводятся в stdout (таблица или
// JSON с --json), сообщения — в stderr.
package cli
