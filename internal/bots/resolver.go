package bots

import "context"

// Resolver picks the upstream bot for a stream request.
//
// Precedence, first match wins:
//  1. explicit bot id (must belong to the user)
//  2. bot bound to the conversation
//  3. the user's default bot, newest first; then any bot, newest first
type Resolver struct {
	repo  *Repo
	cache Cache
}

func NewResolver(repo *Repo, cache Cache) *Resolver {
	return &Resolver{repo: repo, cache: cache}
}

func (r *Resolver) Resolve(ctx context.Context, userID string, explicitBotID, conversationID *uint64) (*BotConfig, error) {
	if explicitBotID != nil {
		if r.cache != nil {
			if b, ok := r.cache.Get(ctx, userID, *explicitBotID); ok {
				return b, nil
			}
		}
		b, err := r.repo.GetBot(ctx, userID, *explicitBotID)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			r.cache.Set(ctx, b)
		}
		return b, nil
	}

	if conversationID != nil {
		b, err := r.repo.GetConversationBot(ctx, userID, *conversationID)
		if err != nil {
			return nil, err
		}
		if b != nil {
			return b, nil
		}
		// no binding: fall through to the default
	}

	return r.repo.GetDefaultBot(ctx, userID)
}
