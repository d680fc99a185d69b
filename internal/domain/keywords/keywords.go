// Package keywords хранит неизменяемый набор негативных слов-триггеров.
// Проверка вхождения выполняется автоматом Ахо-Корасик за один проход по тексту,
// поэтому стоимость не растёт с размером словаря.
package keywords

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// Set: набор ключевых слов в нижнем регистре. После создания не меняется,
// поэтому безопасен для конкурентного чтения без блокировок.
type Set struct {
	words   []string
	matcher *ahocorasick.Matcher
}

// New строит набор из произвольного списка: обрезает пробелы, приводит к нижнему
// регистру, выкидывает пустые строки и дубликаты.
func New(words []string) *Set {
	seen := make(map[string]struct{}, len(words))
	normalized := make([]string, 0, len(words))
	for _, w := range words {
		kw := strings.ToLower(strings.TrimSpace(w))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		normalized = append(normalized, kw)
	}

	s := &Set{words: normalized}
	if len(normalized) > 0 {
		s.matcher = ahocorasick.NewStringMatcher(normalized)
	}
	return s
}

// Load читает словарь из файла: одно слово на строку. Отсутствие файла, ошибка.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open negative words %q: %w", path, err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		words = append(words, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read negative words %q: %w", path, err)
	}
	return New(words), nil
}

// Len возвращает число слов в наборе.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.words)
}

// Contains сообщает, содержит ли text (без учёта регистра) хотя бы одно слово как подстроку.
func (s *Set) Contains(text string) bool {
	if s == nil || s.matcher == nil {
		return false
	}
	return s.matcher.Contains([]byte(strings.ToLower(text)))
}

// Match возвращает совпавшие слова в порядке словаря. Нужен для диагностики.
func (s *Set) Match(text string) []string {
	if s == nil || s.matcher == nil {
		return nil
	}
	hits := s.matcher.Match([]byte(strings.ToLower(text)))
	if len(hits) == 0 {
		return nil
	}
	out := make([]string, 0, len(hits))
	for _, idx := range hits {
		out = append(out, s.words[idx])
	}
	return out
}
