// Package llm подключает языковую модель к model tasks через langchaingo.
package llm
