package redis

// Key prefixes for primary entity storage.
const (
	prefixAPIKey       = "resthook:akey:"
	prefixSubscription = "resthook:sub:"
	prefixJob          = "resthook:job:"
	prefixLogEntry     = "resthook:dlog:"
)

// Key prefixes for unique indexes.
const (
	uniqueKeyHash   = "resthook:u:akey:hash:" // + secret hash
	uniqueSubTriple = "resthook:u:sub:"       // + tenant|event|url
)

// Key prefixes for sorted set indexes.
const (
	zKeyTenant   = "resthook:z:akey:tenant:" // + tenant ID
	zSubTenant   = "resthook:z:sub:tenant:"  // + tenant ID
	zJobQueue    = "resthook:z:job:queue"    // score: next attempt
	zJobLease    = "resthook:z:job:lease"    // score: lease expiry
	zJobDone     = "resthook:z:job:done"     // score: completion
	zJobEvent    = "resthook:z:job:evt:"     // + event ID
	zLogJob      = "resthook:z:dlog:job:"    // + job ID, score: attempt
	zLogSub      = "resthook:z:dlog:sub:"    // + subscription ID
	zLogTenant   = "resthook:z:dlog:tenant:" // + tenant ID
	hLogCounters = "resthook:h:dlog:tenant:" // + tenant ID
)

// Key prefixes for set indexes.
const (
	sSubActive      = "resthook:s:sub:active:" // + tenant ID + ":" + event type
	sSubTenantAlive = "resthook:s:sub:alive:"  // + tenant ID
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// tripleKey returns the unique-index key of a subscription.
func tripleKey(tenantID, eventType, targetURL string) string {
	return uniqueSubTriple + tenantID + "|" + eventType + "|" + targetURL
}

// activeSetKey returns the set of active subscription IDs for one event type.
func activeSetKey(tenantID, eventType string) string {
	return sSubActive + tenantID + ":" + eventType
}
