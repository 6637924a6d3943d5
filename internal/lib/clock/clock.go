// Package clock абстрагирует текущее время для фоновых задач и тестов.
package clock

import "time"

// Clock источник текущего времени.
type Clock interface {
	Now() time.Time
}

// Real системные часы в UTC.
type Real struct{}

// Now возвращает текущее время в UTC.
func (Real) Now() time.Time { return time.Now().UTC() }

// Fixed часы, всегда возвращающие одно и то же время.
type Fixed time.Time

// Now возвращает зафиксированное время.
func (f Fixed) Now() time.Time { return time.Time(f) }
