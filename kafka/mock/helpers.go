package mockkafka

import (
	"time"

	"github.com/hugolhafner/go-lanes/kafka"
)

// SimpleRecord builds a record with string key and value. Topic, partition
// and offset are filled in by AddRecords.
func SimpleRecord(key, value string) kafka.ConsumerRecord {
	return kafka.ConsumerRecord{
		Key:       []byte(key),
		Value:     []byte(value),
		Timestamp: time.Now(),
	}
}
