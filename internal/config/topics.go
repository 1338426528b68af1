package config

const (
	// TopicEpisodeTranscribed is the NSQ topic announcing that an episode's
	// transcript has been written and is ready for chunking and embedding.
	TopicEpisodeTranscribed = "episode.transcribed"
)
