package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

func Component(name string) Field {
	return String("component", name)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Latency(d time.Duration) Field {
	return Float64("latency_s", d.Seconds())
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}

// Domain fields

func TaskID(id string) Field {
	return String("task_id", id)
}

func Backend(name string) Field {
	return String("backend", name)
}

func Kind(kind string) Field {
	return String("kind", kind)
}

func Phase(name string) Field {
	return String("phase", name)
}

func HopLevel(level int) Field {
	return Int("level", level)
}

func Iteration(i int) Field {
	return Int("iteration", i)
}

func MemoryMB(mb float64) Field {
	return Float64("memory_mb", mb)
}
