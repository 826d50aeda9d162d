// Package common — clock.go изолирует источники времени и случайности.
// Движки получают их через интерфейсы, поэтому в тестах время и жребий
// подменяются детерминированными реализациями.
package common

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Clock выдаёт текущее время.
type Clock interface {
	Now() time.Time
}

// SystemClock — обычные часы process-а.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock — часы с ручным управлением (для тестов).
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock создаёт часы, остановленные на моменте t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance сдвигает часы вперёд на d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set переставляет часы на момент t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// RNG — источник равномерного жребия для розыгрыша.
type RNG interface {
	// Percent возвращает равномерное число из [0, 100).
	Percent() float64
}

// SystemRNG — жребий на math/rand/v2.
type SystemRNG struct{}

func (SystemRNG) Percent() float64 { return rand.Float64() * 100 }

// ScriptedRNG выдаёт заранее заданные значения по кругу (для тестов).
type ScriptedRNG struct {
	mu     sync.Mutex
	values []float64
	next   int
}

// NewScriptedRNG создаёт жребий, выдающий values по порядку.
func NewScriptedRNG(values ...float64) *ScriptedRNG {
	return &ScriptedRNG{values: values}
}

func (r *ScriptedRNG) Percent() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.values[r.next%len(r.values)]
	r.next++
	return v
}
