package model

// SessionMode discriminates what a Session plays.
type SessionMode string

const (
	// ModeSingle plays exactly one asset.
	ModeSingle SessionMode = "single"
	// ModePlaylist plays an ordered playlist of assets.
	ModePlaylist SessionMode = "playlist"
	// ModeMusicPlaylist plays a looping background video muted under a music
	// playlist, optionally mixed with a looping ambient/SFX track (§6a).
	ModeMusicPlaylist SessionMode = "music_playlist"
)

// SessionContent is a tagged union of what a Session plays. It is only
// constructible through NewSingleContent / NewPlaylistContent /
// NewMusicPlaylistContent, so invariant I1 of the session model (exactly one
// content shape is set, matching mode) is a construction-time guarantee
// rather than a runtime check scattered across callers.
type SessionContent struct {
	mode SessionMode

	assetID    string // ModeSingle
	playlistID string // ModePlaylist, or the music concat playlist for ModeMusicPlaylist

	backgroundAssetID string  // ModeMusicPlaylist: looping background video
	ambientAssetID    string  // ModeMusicPlaylist: optional looping SFX/ambient track
	ambientVolume     float64 // ModeMusicPlaylist: volume multiplier applied to the ambient track
}

// NewSingleContent builds content that plays exactly one asset.
func NewSingleContent(assetID string) SessionContent {
	return SessionContent{mode: ModeSingle, assetID: assetID}
}

// NewPlaylistContent builds content that plays a playlist.
func NewPlaylistContent(playlistID string) SessionContent {
	return SessionContent{mode: ModePlaylist, playlistID: playlistID}
}

// NewMusicPlaylistContent builds content for the music-playlist mode:
// backgroundAssetID loops silently as the video source, musicPlaylistID is
// concat-demuxed for audio, and ambientAssetID (optional; pass "" to omit)
// is mixed in at ambientVolume alongside the music at unity gain.
func NewMusicPlaylistContent(backgroundAssetID, musicPlaylistID, ambientAssetID string, ambientVolume float64) SessionContent {
	return SessionContent{
		mode:              ModeMusicPlaylist,
		playlistID:        musicPlaylistID,
		backgroundAssetID: backgroundAssetID,
		ambientAssetID:    ambientAssetID,
		ambientVolume:     ambientVolume,
	}
}

// Mode reports which kind of content this is.
func (c SessionContent) Mode() SessionMode {
	return c.mode
}

// AssetID returns the referenced asset id and true when Mode() == ModeSingle.
func (c SessionContent) AssetID() (string, bool) {
	return c.assetID, c.mode == ModeSingle
}

// PlaylistID returns the referenced playlist id and true when Mode() ∈
// {ModePlaylist, ModeMusicPlaylist} (the music concat playlist, in the
// latter case).
func (c SessionContent) PlaylistID() (string, bool) {
	return c.playlistID, c.mode == ModePlaylist || c.mode == ModeMusicPlaylist
}

// BackgroundAssetID returns the looping background asset id and true when
// Mode() == ModeMusicPlaylist.
func (c SessionContent) BackgroundAssetID() (string, bool) {
	return c.backgroundAssetID, c.mode == ModeMusicPlaylist
}

// AmbientAssetID returns the optional ambient/SFX asset id and true when one
// is configured (only possible when Mode() == ModeMusicPlaylist).
func (c SessionContent) AmbientAssetID() (string, bool) {
	return c.ambientAssetID, c.mode == ModeMusicPlaylist && c.ambientAssetID != ""
}

// AmbientVolume returns the configured ambient-track volume multiplier.
func (c SessionContent) AmbientVolume() float64 {
	return c.ambientVolume
}
