package presence

import "strings"

const presenceSuffix = "presence"

// Codec derives ledger locations from group and room names.
//
//	<prefix>:group:<group>:presence
//	<prefix>:group:<group>:<room>:presence
type Codec struct {
	prefix   string
	capacity int
}

func NewCodec(prefix string, capacity int) Codec {
	return Codec{prefix: prefix, capacity: capacity}
}

// GroupKey is the channel layer's namespaced key for group.
func (c Codec) GroupKey(group string) (string, error) {
	if !ValidGroupName(group, c.capacity) {
		return "", invalidGroup(group)
	}
	return c.prefix + ":group:" + group, nil
}

// Key returns the group-level ledger location.
func (c Codec) Key(group string) (string, error) {
	return c.RoomKey(group, "")
}

// RoomKey returns the ledger location for room within group. An empty room yields the
// group-level location.
func (c Codec) RoomKey(group, room string) (string, error) {
	groupKey, err := c.GroupKey(group)
	if err != nil {
		return "", err
	}
	if room == "" {
		return groupKey + ":" + presenceSuffix, nil
	}
	return groupKey + ":" + room + ":" + presenceSuffix, nil
}

// Pattern matches every ledger location under the codec's prefix.
func (c Codec) Pattern() string {
	return c.prefix + ":group:*:" + presenceSuffix
}

// Parse splits a ledger location back into its group and room. Group-level locations have
// an empty room.
func (c Codec) Parse(location string) (group, room string, ok bool) {
	rest, found := strings.CutPrefix(location, c.prefix+":group:")
	if !found {
		return "", "", false
	}
	rest, found = strings.CutSuffix(rest, ":"+presenceSuffix)
	if !found {
		return "", "", false
	}
	group, room, _ = strings.Cut(rest, ":")
	if !ValidGroupName(group, c.capacity) {
		return "", "", false
	}
	return group, room, true
}
