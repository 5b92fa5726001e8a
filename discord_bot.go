package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// SealBot posts scrape outcomes to the configured channels and answers
// `!seal <name>` lookups.
type SealBot struct {
	store      *Store
	session    *discordgo.Session
	channelIDs map[string]struct{}
}

// startDiscordBot connects the bot and keeps it alive until the context is
// canceled. Returns nil when the bot is not configured; that is not an
// error, the site just runs without announcements.
func startDiscordBot(ctx context.Context, store *Store, cfg Config) *SealBot {
	if cfg.DiscordBotToken == "" {
		log.Println("[W] [Discord Bot] DISCORD_BOT_TOKEN not set. Bot will not start.")
		return nil
	}
	if cfg.DiscordChannelIDs == "" {
		log.Println("[W] [Discord Bot] DISCORD_CHANNEL_IDS not set. Bot will not start.")
		return nil
	}

	bot := &SealBot{
		store:      store,
		channelIDs: make(map[string]struct{}),
	}
	for _, id := range strings.Split(cfg.DiscordChannelIDs, ",") {
		if trimmedID := strings.TrimSpace(id); trimmedID != "" {
			bot.channelIDs[trimmedID] = struct{}{}
		}
	}
	if len(bot.channelIDs) == 0 {
		log.Println("[W] [Discord Bot] No valid channel IDs found in DISCORD_CHANNEL_IDS. Bot will not start.")
		return nil
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		log.Printf("[E] [Discord Bot] Error creating Discord session: %v", err)
		return nil
	}

	dg.AddHandler(bot.ready)
	dg.AddHandler(bot.messageCreate)
	dg.Identify.Intents = discordgo.IntentsGuildMessages

	if err := dg.Open(); err != nil {
		log.Printf("[E] [Discord Bot] Error opening connection: %v", err)
		return nil
	}
	bot.session = dg

	go func() {
		<-ctx.Done()
		log.Println("[I] [Discord Bot] Shutdown signal received. Closing Discord connection...")
		dg.Close()
	}()

	return bot
}

func (b *SealBot) ready(s *discordgo.Session, event *discordgo.Ready) {
	log.Println("[I] [Discord Bot] Bot is connected and ready!")
	log.Printf("   -> Logged in as: %v#%v", s.State.User.Username, s.State.User.Discriminator)

	var listeningIDs []string
	for id := range b.channelIDs {
		listeningIDs = append(listeningIDs, id)
	}
	log.Printf("   -> Listening on %d Channel(s): %s", len(b.channelIDs), strings.Join(listeningIDs, ", "))
}

// AnnounceOutcome posts a finished scrape's summary to every configured
// channel.
func (b *SealBot) AnnounceOutcome(outcome ScrapeOutcome) {
	if b == nil || b.session == nil {
		return
	}

	var message string
	switch outcome.Source {
	case SourceWiki:
		message = fmt.Sprintf("✅ Seal scrape finished: **%d** seals refreshed from the wiki in %.1fs.", outcome.SealsCount, outcome.ElapsedSeconds)
	case SourceGemini:
		message = fmt.Sprintf("⚠️ Seal scrape used AI extraction (%s). **%d** seals refreshed.", outcome.FallbackReason, outcome.SealsCount)
	default:
		message = fmt.Sprintf("⚠️ Seal scrape fell back to the bundled dataset (%s). **%d** seals loaded.", outcome.FallbackReason, outcome.SealsCount)
	}

	for channelID := range b.channelIDs {
		if _, err := b.session.ChannelMessageSend(channelID, message); err != nil {
			log.Printf("[W] [Discord Bot] Could not announce to channel %s: %v", channelID, err)
		}
	}
}

func (b *SealBot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}
	if _, ok := b.channelIDs[m.ChannelID]; !ok {
		return
	}

	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(strings.ToLower(content), "!seal ") {
		return
	}
	name := strings.TrimSpace(content[len("!seal "):])
	if name == "" {
		return
	}

	log.Printf("[I] [Discord] Seal lookup from '%s': \"%s\"", m.Author.Username, name)

	seal, categoryID, found := b.store.FindSealByName(name)
	if !found {
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("No seal named **%s** found.", name))
		return
	}

	locations := "Unknown"
	if len(seal.Locations) > 0 {
		locations = strings.Join(seal.Locations, ", ")
	}
	reply := fmt.Sprintf("**%s** (%s)\nMax seals: %d\nMaster bonus: %s\nLocations: %s",
		seal.Name, strings.ToUpper(categoryID), seal.MaxSeals, seal.Bonuses.Master, locations)
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		log.Printf("[W] [Discord Bot] Could not reply in channel %s: %v", m.ChannelID, err)
	}
}
