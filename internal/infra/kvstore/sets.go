package kvstore

import (
	"context"

	"go.uber.org/zap"
)

// SetAdd adds members to the string set stored under key.
func (s *Store) SetAdd(ctx context.Context, key string, members ...string) bool {
	if s.remote != nil {
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			return s.remote.SAdd(ctx, key, members...)
		})
		if err == nil {
			s.memory.delete(key)
			s.metrics.RecordStoreOperation("sadd", tierRemote, true)
			return true
		}
		s.remoteFailed("sadd", key, err, true)
	}

	if err := s.memory.setAdd(key, members, s.clock.Now()); err != nil {
		s.logger.Warn("malformed set payload", zap.String("key", key), zap.Error(err))
		s.metrics.RecordStoreOperation("sadd", tierMemory, false)
		return false
	}
	s.metrics.RecordStoreOperation("sadd", tierMemory, true)
	return true
}

// SetRemove removes members from the string set stored under key.
func (s *Store) SetRemove(ctx context.Context, key string, members ...string) bool {
	if s.remote != nil {
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			return s.remote.SRem(ctx, key, members...)
		})
		if err == nil {
			s.memory.delete(key)
			s.metrics.RecordStoreOperation("srem", tierRemote, true)
			return true
		}
		s.remoteFailed("srem", key, err, true)
	}

	if err := s.memory.setRemove(key, members, s.clock.Now()); err != nil {
		s.logger.Warn("malformed set payload", zap.String("key", key), zap.Error(err))
		s.metrics.RecordStoreOperation("srem", tierMemory, false)
		return false
	}
	s.metrics.RecordStoreOperation("srem", tierMemory, true)
	return true
}

// SetIsMember reports whether member belongs to the set stored under key.
func (s *Store) SetIsMember(ctx context.Context, key, member string) bool {
	if s.remote != nil {
		var found bool
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			found, err = s.remote.SIsMember(ctx, key, member)
			return err
		})
		if err == nil {
			s.metrics.RecordStoreOperation("sismember", tierRemote, found)
			return found
		}
		s.remoteFailed("sismember", key, err, false)
	}

	for _, m := range s.memberList(key) {
		if m == member {
			return true
		}
	}
	return false
}

// SetMembers lists the members of the set stored under key.
func (s *Store) SetMembers(ctx context.Context, key string) []string {
	if s.remote != nil {
		var members []string
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			members, err = s.remote.SMembers(ctx, key)
			return err
		})
		if err == nil {
			s.metrics.RecordStoreOperation("smembers", tierRemote, true)
			return members
		}
		s.remoteFailed("smembers", key, err, false)
	}
	return s.memberList(key)
}

func (s *Store) memberList(key string) []string {
	members, err := s.memory.setMembers(key, s.clock.Now())
	if err != nil {
		s.logger.Warn("malformed set payload", zap.String("key", key), zap.Error(err))
		return nil
	}
	s.metrics.RecordStoreOperation("smembers", tierMemory, len(members) > 0)
	return members
}
