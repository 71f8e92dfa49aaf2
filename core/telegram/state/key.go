package state

import (
	"encoding/binary"
	"hash/fnv"
	"strconv"
)

// Key identifies one conversation: a chat, optionally narrowed to a forum topic thread.
type Key struct {
	ChatID    int64
	ThreadID  int
	HasThread bool
}

// ChatKey returns the key of a whole chat (or of a user, for user-keyed events).
func ChatKey(chatID int64) Key {
	return Key{ChatID: chatID}
}

// ThreadKey returns the key of one topic thread inside a chat.
func ThreadKey(chatID int64, threadID int) Key {
	return Key{ChatID: chatID, ThreadID: threadID, HasThread: true}
}

// String renders the key as {chat=42} or {chat=42, thread=7}.
func (k Key) String() string {
	b := make([]byte, 0, 40)
	b = append(b, "{chat="...)
	b = strconv.AppendInt(b, k.ChatID, 10)
	if k.HasThread {
		b = append(b, ", thread="...)
		b = strconv.AppendInt(b, int64(k.ThreadID), 10)
	}
	b = append(b, '}')
	return string(b)
}

// Shard maps the key onto one of n buckets; equal keys always land in the same bucket.
func (k Key) Shard(n int) int {
	if n <= 1 {
		return 0
	}
	var buf [17]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(k.ChatID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(int64(k.ThreadID)))
	if k.HasThread {
		buf[16] = 1
	}
	h := fnv.New64a()
	_, _ = h.Write(buf[:])
	return int(h.Sum64() % uint64(n))
}
