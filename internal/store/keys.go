package store

// Key layout shared by every backend.
func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func turnKey(sessionID, address string) string {
	return "drawing:" + sessionID + ":" + address
}

func votesKey(sessionID string) string {
	return "votes:" + sessionID
}

func finalKey(sessionID string) string {
	return "final_image:" + sessionID
}

func generationKey(sessionID string) string {
	return "generated_images:" + sessionID
}

func leaseKey(sessionID string) string {
	return "generation_lock:" + sessionID
}
