package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vietddude/custodian/budget"
)

func main() {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/0"
	}

	rdb, err := budget.DialRedis(url, os.Getenv("REDIS_PASSWORD"))
	if err != nil {
		panic(err)
	}
	defer rdb.Close()

	tracker := budget.NewRedisTracker(rdb, 0)
	tracker.Reset(context.Background())

	fmt.Println("Successfully reset budget counters")
}
