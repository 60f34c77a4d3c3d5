// Package cache реализует потокобезопасный in-memory кэш с TTL.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value  any
	expiry time.Time
}

// Cache хранит значения с абсолютным сроком годности. Просроченные записи
// удаляются лениво при первом обращении, фонового вытеснения нет.
// Кэш живёт в памяти процесса и является чистой оптимизацией: его потеря
// не влияет на корректность, все значения пересчитываемы.
type Cache struct {
	mu    sync.Mutex
	items map[string]entry
	now   func() time.Time
}

// New создаёт пустой кэш.
func New() *Cache {
	return &Cache{
		items: make(map[string]entry),
		now:   time.Now,
	}
}

// Get возвращает значение по ключу. Запись, чей срок годности наступил,
// считается отсутствующей и удаляется на этом же обращении.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}

	if !c.now().Before(e.expiry) {
		delete(c.items, key)
		return nil, false
	}

	return e.value, true
}

// Set сохраняет значение со сроком годности now + ttl, перезаписывая прежнее.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry{
		value:  value,
		expiry: c.now().Add(ttl),
	}
}

// Clear удаляет все записи.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]entry)
}
