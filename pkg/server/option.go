package server

import (
	"go.uber.org/zap"

	"github.com/extalife/extalife-agent/pkg/backup"
	"github.com/extalife/extalife-agent/pkg/broker"
	"github.com/extalife/extalife-agent/pkg/extalife"
)

type Option func(s *Server) error

// WithAddr returns an Option which set the server listening address.
func WithAddr(addr string) Option {
	return func(s *Server) error {
		s.Addr = addr
		return nil
	}
}

// WithBroker returns an Option which set the server broker for async messaging.
func WithBroker(b broker.Broker) Option {
	return func(s *Server) error {
		s.b = b
		return nil
	}
}

// WithSubscribeTopics returns an Option which set the topics that server broker will subscribe to.
func WithSubscribeTopics(topics ...string) Option {
	return func(s *Server) error {
		s.subscribeTopics = topics
		return nil
	}
}

// WithPublishTopic returns an Option which set the topic that server broker will publish messages to.
func WithPublishTopic(topic string) Option {
	return func(s *Server) error {
		s.publishTopic = topic
		return nil
	}
}

// WithController returns an Option which set the controller client for Server.
func WithController(c *extalife.Client) Option {
	return func(s *Server) error {
		s.controller = c
		return nil
	}
}

// WithBackupStore returns an Option which set the backup store for Server.
func WithBackupStore(store *backup.Store) Option {
	return func(s *Server) error {
		s.store = store
		return nil
	}
}

// WithLogger returns an Option which set the logger for Server.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}
