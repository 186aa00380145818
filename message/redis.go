package message

import (
	"reservations/observability"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
	})
}

func NewRedisPublisher(rdb *redis.Client, watermillLogger watermill.LoggerAdapter) message.Publisher {
	var pub message.Publisher
	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: rdb,
	}, watermillLogger)
	if err != nil {
		panic(err)
	}

	return DecoratePublisher(pub)
}

// DecoratePublisher adds correlation id and trace context to published messages.
func DecoratePublisher(pub message.Publisher) message.Publisher {
	pub = log.CorrelationPublisherDecorator{Publisher: pub}
	return observability.TracingPublisherDecorator{Publisher: pub}
}

func NewRedisSubscriberFactory(rdb *redis.Client, watermillLogger watermill.LoggerAdapter) SubscriberFactory {
	return func(consumerGroup string) (message.Subscriber, error) {
		return redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        rdb,
			ConsumerGroup: consumerGroup,
		}, watermillLogger)
	}
}
