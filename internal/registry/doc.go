// Package registry реализует реестр backend'ов.
//
// Реестр хранит дескрипторы трёх видов:
//   - local — локальный chat сервер (MCP_SERVER_URL)
//   - external-http — внешние серверы из EXTERNAL_MCP_SERVERS и каталога
//   - remote-agent — удалённые агенты из каталога
//
// Refresh собирает новый набор дескрипторов целиком и заменяет старый
// одной операцией: читатели видят либо старый, либо новый набор.
// Backend, который не удалось проверить, остаётся в реестре со
// статусом unknown.
package registry
