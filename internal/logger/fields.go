package logger

import "go.uber.org/zap"

func Collection(v string) zap.Field {
	return zap.String("collection", v)
}

func RecordID(v string) zap.Field {
	return zap.String("record_id", v)
}

func Topic(v string) zap.Field {
	return zap.String("topic", v)
}

func Generation(v uint64) zap.Field {
	return zap.Uint64("generation", v)
}
