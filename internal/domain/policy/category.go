package policy

// ToolCategory is the closed classification every tool name maps to.
type ToolCategory string

const (
	// CategoryRead covers timeline, search, and profile lookups. Reads are
	// not mutations and never reach the gateway, but rules may still name
	// the category.
	CategoryRead ToolCategory = "read"
	// CategoryWrite covers content creation: posts, replies, quotes.
	CategoryWrite ToolCategory = "write"
	// CategoryEngage covers likes, reposts, follows, and their inverses.
	CategoryEngage ToolCategory = "engage"
	// CategoryMedia covers media uploads.
	CategoryMedia ToolCategory = "media"
	// CategoryThread covers multi-post thread publishing.
	CategoryThread ToolCategory = "thread"
	// CategoryDelete covers destructive removals.
	CategoryDelete ToolCategory = "delete"
)

// IsValid returns true if the category is a known category.
func (c ToolCategory) IsValid() bool {
	switch c {
	case CategoryRead, CategoryWrite, CategoryEngage, CategoryMedia, CategoryThread, CategoryDelete:
		return true
	default:
		return false
	}
}

// toolCategories maps every known tool name to its category.
var toolCategories = map[string]ToolCategory{
	"get_timeline":     CategoryRead,
	"get_mentions":     CategoryRead,
	"get_tweet":        CategoryRead,
	"get_user_profile": CategoryRead,
	"search_tweets":    CategoryRead,

	"post_tweet":  CategoryWrite,
	"reply_tweet": CategoryWrite,
	"quote_tweet": CategoryWrite,

	"like_tweet":    CategoryEngage,
	"unlike_tweet":  CategoryEngage,
	"retweet":       CategoryEngage,
	"unretweet":     CategoryEngage,
	"follow_user":   CategoryEngage,
	"unfollow_user": CategoryEngage,

	"upload_media": CategoryMedia,

	"post_thread": CategoryThread,

	"delete_tweet": CategoryDelete,
}

// CategorizeTool returns the category for a tool name. Unknown tools default
// to CategoryWrite: a tool we cannot classify must be treated as a mutation,
// never as a harmless read.
func CategorizeTool(name string) ToolCategory {
	if c, ok := toolCategories[name]; ok {
		return c
	}
	return CategoryWrite
}

// engagementTypes maps engage-category tools to the engagement type used by
// the per-engagement-type rate limit dimension.
var engagementTypes = map[string]string{
	"like_tweet":    "like",
	"unlike_tweet":  "like",
	"retweet":       "retweet",
	"unretweet":     "retweet",
	"follow_user":   "follow",
	"unfollow_user": "follow",
}

// EngagementType returns the engagement type for a tool, or "" when the tool
// is not an engagement action.
func EngagementType(name string) string {
	return engagementTypes[name]
}
