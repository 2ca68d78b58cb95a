package config

const (
	// TopicIndexTask is the NSQ topic for async document indexing tasks.
	TopicIndexTask = "index.task"

	// ChannelIndexWorker is the consumer channel for the indexing worker.
	ChannelIndexWorker = "index-worker"
)
