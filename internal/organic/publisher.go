// Package organic publishes single-image Instagram posts: stage a media
// container, wait for it to be processed, then publish it.
package organic

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"adpilot/internal/apperrors"
	"adpilot/internal/logging"
	"adpilot/internal/poll"
)

// MediaAPI is the content publishing slice of the platform API.
type MediaAPI interface {
	CreateMediaContainer(ctx context.Context, token, igUserID, imageURL, caption string) (string, error)
	GetContainerStatus(ctx context.Context, token, containerID string) (string, error)
	PublishMedia(ctx context.Context, token, igUserID, containerID string) (string, error)
}

// ImageChecker confirms a URL serves an image directly.
type ImageChecker interface {
	CheckImage(ctx context.Context, imageURL string) error
}

type Post struct {
	InstagramID string `json:"instagramId"`
	Token       string `json:"-"`
	ImageURL    string `json:"imageUrl"`
	Caption     string `json:"caption"`
}

type Result struct {
	OK          bool   `json:"ok"`
	ContainerID string `json:"containerId,omitempty"`
	MediaID     string `json:"mediaId,omitempty"`
	Ready       bool   `json:"ready"`
}

type Publisher struct {
	api    MediaAPI
	policy poll.Policy
	images ImageChecker
	logger *zap.Logger
}

// NewPublisher builds a publisher. images may be nil to skip the live check.
func NewPublisher(api MediaAPI, policy poll.Policy, images ImageChecker, logger *zap.Logger) *Publisher {
	return &Publisher{api: api, policy: policy, images: images, logger: logging.OrNop(logger)}
}

// Publish runs the two-phase protocol. Readiness polling is best effort: the
// container is published even if no poll confirmed it.
func (p *Publisher) Publish(ctx context.Context, post Post) (*Result, error) {
	if err := p.validate(ctx, post); err != nil {
		return nil, err
	}
	log := p.logger.With(zap.String("ig_user", post.InstagramID))

	containerID, err := p.api.CreateMediaContainer(ctx, post.Token, post.InstagramID, post.ImageURL, post.Caption)
	if err != nil {
		return nil, apperrors.New(apperrors.KindRemoteFatal, "organic.container", "media container creation failed", err)
	}
	if containerID == "" {
		return nil, apperrors.New(apperrors.KindRemoteFatal, "organic.container", "media container creation failed",
			errors.New("response carried no container id"))
	}
	res := &Result{ContainerID: containerID}
	log = log.With(zap.String("container_id", containerID))

	res.Ready, err = p.policy.Until(ctx, func(ctx context.Context) (bool, error) {
		status, err := p.api.GetContainerStatus(ctx, post.Token, containerID)
		if err != nil {
			return false, err
		}
		switch strings.ToUpper(status) {
		case "FINISHED", "PUBLISHED":
			return true, nil
		case "ERROR", "EXPIRED":
			return false, fmt.Errorf("container status %s", status)
		}
		return false, nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	if !res.Ready {
		log.Warn("container readiness not confirmed, publishing anyway", zap.Error(err))
	}

	mediaID, err := p.api.PublishMedia(ctx, post.Token, post.InstagramID, containerID)
	if err != nil {
		return res, apperrors.New(apperrors.KindRemoteFatal, "organic.publish", "publishing failed", err)
	}
	if mediaID == "" {
		return res, apperrors.New(apperrors.KindRemoteFatal, "organic.publish", "publishing failed",
			errors.New("response carried no media id"))
	}
	res.MediaID = mediaID
	res.OK = true
	log.Info("organic post published", zap.String("media_id", mediaID), zap.Bool("ready_confirmed", res.Ready))
	return res, nil
}

func (p *Publisher) validate(ctx context.Context, post Post) error {
	const op = "organic.validate"
	if post.Token == "" {
		return apperrors.Configuration(op, "no access credential for the connected business")
	}
	if post.InstagramID == "" {
		return apperrors.Configuration(op, "no Instagram business account selected")
	}
	if strings.TrimSpace(post.ImageURL) == "" {
		return apperrors.Validation(op, "an image url is required")
	}
	if IsShareLink(post.ImageURL) {
		return apperrors.Validation(op, "drive share links cannot be published; use a direct image url")
	}
	if p.images != nil {
		if err := p.images.CheckImage(ctx, post.ImageURL); err != nil {
			return apperrors.New(apperrors.KindValidation, op, "image url is not a reachable image", err)
		}
	}
	return nil
}

var shareHosts = []string{"drive.google.com", "docs.google.com", "drive.usercontent.google.com", "1drv.ms", "onedrive.live.com"}

// IsShareLink reports whether u points at a file-sharing page rather than an image.
func IsShareLink(u string) bool {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, h := range shareHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
