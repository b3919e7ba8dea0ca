// Package repo хранит архив отчётов о запусках в PostgreSQL.
//
// Архив не участвует в выполнении: состояние workflow живёт
// в памяти процесса, сюда попадает только итоговый отчёт.
package repo
