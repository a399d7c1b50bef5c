package mailbox

// MergeLabels returns copies of msgs whose Properties.Labels holds the
// deduplicated union of the existing labels, the literal tag ids and the
// relation-derived tag ids for that message, in that order. The input
// messages are not modified.
func MergeLabels(msgs []Message, relTags map[string][]Tag) []Message {
	out := make([]Message, len(msgs))
	for i := range msgs {
		out[i] = msgs[i]
		out[i].Properties.Labels = mergedLabelIDs(&msgs[i], relTags[msgs[i].ID])
	}
	return out
}

func mergedLabelIDs(msg *Message, related []Tag) []string {
	n := len(msg.Properties.Labels) + len(msg.Properties.Tags) + len(related)
	if n == 0 {
		return nil
	}
	ids := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, id := range msg.Properties.Labels {
		add(id)
	}
	for _, tag := range msg.Properties.Tags {
		add(tag.ID)
	}
	for _, tag := range related {
		add(tag.ID)
	}
	return ids
}

// MergeLabelNames returns a label id -> display name catalogue made of base
// plus every relation-derived tag. A relation tag's label replaces the base
// entry for the same id.
func MergeLabelNames(base map[string]string, relTags map[string][]Tag) map[string]string {
	names := make(map[string]string, len(base))
	for id, name := range base {
		names[id] = name
	}
	for _, tags := range relTags {
		for _, tag := range tags {
			names[tag.ID] = tag.Label
		}
	}
	return names
}

// LiteralLabelNames builds the id -> label catalogue of all literal tags in
// msgs.
func LiteralLabelNames(msgs []Message) map[string]string {
	names := make(map[string]string)
	for i := range msgs {
		for _, tag := range msgs[i].Properties.Tags {
			if _, ok := names[tag.ID]; !ok && tag.ID != "" {
				names[tag.ID] = tag.Label
			}
		}
	}
	return names
}
