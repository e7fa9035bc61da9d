package main

import (
	"context"
	"log"
	"time"

	"github.com/quocanhngo/edumsg/internal/config"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/repository"
	"github.com/quocanhngo/edumsg/internal/service"
	"github.com/quocanhngo/edumsg/migrations"
	"github.com/quocanhngo/edumsg/pkg/auth"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const demoSubject = "Sortie au musée"

func main() {
	// Load config
	cfg := config.Load()

	// Force DB logging off to avoid noise
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to Database")

	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.Fatalf("❌ Failed to migrate database: %v", err)
	}

	teacher := model.Identity{UserID: 1, UserType: model.UserTypeTeacher, Role: model.RoleUser}
	students := []model.Identity{
		{UserID: 1, UserType: model.UserTypeStudent, Role: model.RoleUser},
		{UserID: 2, UserType: model.UserTypeStudent, Role: model.RoleUser},
	}
	parent := model.Identity{UserID: 1, UserType: model.UserTypeParent, Role: model.RoleUser}
	staff := model.Identity{UserID: 1, UserType: model.UserTypeStaff, Role: model.RoleStaff}

	seedConversation(db, cfg, teacher, students, parent)

	// Dev tokens, valid for a week
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, 7*24*time.Hour)
	log.Println("🔑 Dev tokens:")
	for _, who := range append([]model.Identity{teacher, parent, staff}, students...) {
		token, err := jwtManager.GenerateToken(who)
		if err != nil {
			log.Fatalf("❌ Failed to sign token for %s: %v", who.Ref(), err)
		}
		log.Printf("   %-12s %s", who.Ref(), token)
	}

	log.Println("🎉 Seeding completed!")
}

func seedConversation(db *gorm.DB, cfg *config.Config, teacher model.Identity, students []model.Identity, parent model.Identity) {
	// Check if the demo conversation exists
	var count int64
	db.Model(&model.Conversation{}).Where("subject = ?", demoSubject).Count(&count)
	if count > 0 {
		log.Println("⏭️  Demo conversation already seeded")
		return
	}

	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	tracker := service.NewReadTracker(db, convRepo, msgRepo, notifRepo, cfg.Read, nil)
	convService := service.NewConversationService(db, convRepo, msgRepo, notifRepo, nil, nil)
	messageService := service.NewMessageService(db, convRepo, msgRepo, notifRepo, tracker, nil, cfg.Read, nil)

	ctx := context.Background()
	participants := []model.UserRef{parent.Ref()}
	for _, s := range students {
		participants = append(participants, s.Ref())
	}

	convID, err := convService.CreateConversation(ctx, teacher, model.CreateConversationRequest{
		Subject:      demoSubject,
		Participants: participants,
	})
	if err != nil {
		log.Printf("❌ Failed to create conversation: %v", err)
		return
	}

	sends := []struct {
		from model.Identity
		req  model.SendMessageRequest
	}{
		{teacher, model.SendMessageRequest{Body: "Bonjour à tous, la sortie au musée aura lieu vendredi.", Status: model.MessageStatusImportant}},
		{parent, model.SendMessageRequest{Body: "Merci, faut-il prévoir un pique-nique ?"}},
		{teacher, model.SendMessageRequest{Body: "Oui, un repas froid suffira. Départ 8h30 devant l'école.", Status: model.MessageStatusAnnonce}},
	}
	for _, s := range sends {
		if _, err := messageService.Send(ctx, s.from, convID, s.req, nil); err != nil {
			log.Printf("❌ Failed to send message as %s: %v", s.from.Ref(), err)
			return
		}
	}

	// One student has caught up
	if _, err := tracker.MarkConversationRead(ctx, students[0], convID); err != nil {
		log.Printf("❌ Failed to mark read: %v", err)
	}

	log.Printf("✅ Created demo conversation %d with %d participants", convID, len(participants)+1)
}
