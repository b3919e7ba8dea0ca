// Package graph строит read-only проекцию workflow (tasks и рёбра
// зависимостей, успеха и ошибки) и выводит её в DOT или JSON.
package graph
