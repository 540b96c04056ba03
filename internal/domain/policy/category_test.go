package policy

import "testing"

func TestCategorizeTool(t *testing.T) {
	tests := []struct {
		tool string
		want ToolCategory
	}{
		{"get_timeline", CategoryRead},
		{"search_tweets", CategoryRead},
		{"post_tweet", CategoryWrite},
		{"reply_tweet", CategoryWrite},
		{"quote_tweet", CategoryWrite},
		{"like_tweet", CategoryEngage},
		{"unfollow_user", CategoryEngage},
		{"upload_media", CategoryMedia},
		{"post_thread", CategoryThread},
		{"delete_tweet", CategoryDelete},
	}
	for _, tt := range tests {
		if got := CategorizeTool(tt.tool); got != tt.want {
			t.Errorf("CategorizeTool(%q) = %q, want %q", tt.tool, got, tt.want)
		}
	}
}

// Unknown tools must be treated as mutations, never as harmless reads.
func TestCategorizeToolUnknownDefaultsToWrite(t *testing.T) {
	for _, tool := range []string{"", "some_new_tool", "get_something_odd"} {
		if got := CategorizeTool(tool); got != CategoryWrite {
			t.Errorf("CategorizeTool(%q) = %q, want %q", tool, got, CategoryWrite)
		}
	}
}

func TestEngagementType(t *testing.T) {
	tests := []struct {
		tool string
		want string
	}{
		{"like_tweet", "like"},
		{"unlike_tweet", "like"},
		{"retweet", "retweet"},
		{"unretweet", "retweet"},
		{"follow_user", "follow"},
		{"unfollow_user", "follow"},
		{"post_tweet", ""},
		{"delete_tweet", ""},
		{"unknown_tool", ""},
	}
	for _, tt := range tests {
		if got := EngagementType(tt.tool); got != tt.want {
			t.Errorf("EngagementType(%q) = %q, want %q", tt.tool, got, tt.want)
		}
	}
}

func TestCategoryIsValid(t *testing.T) {
	for _, c := range []ToolCategory{CategoryRead, CategoryWrite, CategoryEngage, CategoryMedia, CategoryThread, CategoryDelete} {
		if !c.IsValid() {
			t.Errorf("category %q should be valid", c)
		}
	}
	if ToolCategory("bogus").IsValid() {
		t.Error("bogus category should not be valid")
	}
}
