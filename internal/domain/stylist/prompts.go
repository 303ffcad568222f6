package stylist

import (
	"fmt"
	"strings"
	"time"
)

var bodyTypeDescriptors = map[string]string{
	"muscular": "muscular/athletic build",
	"slim":     "slim/lean build",
	"average":  "average build",
	"chubby":   "chubby/plus-size build",
}

var bodyTypeShort = map[string]string{
	"muscular": "athletic",
	"slim":     "slim",
	"average":  "average",
	"chubby":   "plus-size",
}

func bodyDescriptor(bodyType string) string {
	if desc, ok := bodyTypeDescriptors[bodyType]; ok {
		return desc
	}
	return bodyTypeDescriptors["average"]
}

func genderWord(gender string) string {
	if gender == "male" {
		return "male"
	}
	return "female"
}

// buildTextPrompt asks for climate inference and a style report returned
// strictly as one JSON object embedded in the reply.
func buildTextPrompt(req Request, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional fashion stylist and personal image consultant. Based on the person's info and location/season, provide a detailed style analysis. Respond in English only.\n\n")
	fmt.Fprintf(&b, "Person: %s, %.0fcm, %.0fkg, %s\n", genderWord(req.Gender), req.Height, req.Weight, bodyDescriptor(req.BodyType))
	fmt.Fprintf(&b, "Country: %s (current month: %s %d)\n\n", req.Country, now.Month().String(), now.Year())
	b.WriteString("Determine the climate from the country and month. Respond in valid JSON only, no markdown:\n\n")
	b.WriteString(`{"climate":"brief climate description for this country and month","bodyAnalysis":{"summary":"2-3 sentence overview of this person's body proportions and how to dress to flatter them","skinTone":"1-2 sentence recommendation on colors that complement typical skin tones for their region/ethnicity","silhouette":"1-2 sentences on ideal silhouette and fit style for their body type","avoid":"1 sentence on what styles or fits to avoid"},"commonTips":["5 universal styling tips personalized to this person's body type and proportions, each tip is 1-2 sentences"],"casual":{"title":"5-7 word title","description":"3-4 sentence outfit description with top, bottom, shoes, accessories","tip":"one styling tip"},"rainy":{"title":"5-7 word title","description":"3-4 sentence outfit description for rainy weather","tip":"one styling tip"}}`)
	return b.String()
}

// buildOutfitPrompt renders one outfit description into an image-edit prompt
// that keeps the person from the reference photo recognizable.
func buildOutfitPrompt(gender, bodyType, description string) string {
	body := bodyTypeShort["average"]
	if short, ok := bodyTypeShort[bodyType]; ok {
		body = short
	}
	return fmt.Sprintf("Generate a full-body fashion photo of the person in the reference image wearing this outfit: %s. "+
		"Keep the person's face, skin tone, hair, and features exactly the same as the reference photo. %s, %s build. "+
		"Full body shot from head to toe, ensure the entire body including head and feet is fully visible within the frame. "+
		"Clean studio background, professional fashion photography. No text or watermarks.", description, genderWord(gender), body)
}

func buildHairstylePrompt(gender string) string {
	return fmt.Sprintf("Create a 3x3 grid showing 9 trendy Korean %s hairstyles on the person from the reference photo. "+
		"Keep face and features identical in all 9 cells. Each cell must be framed as a HEAD AND SHOULDERS portrait shot - "+
		"show from MID-CHEST up to well ABOVE the top of the hair. The camera should be zoomed OUT so that the face is small "+
		"(about 25%% of cell height) and the HAIR is the main focus. There must be large empty space above the hair in every cell - "+
		"no hair should touch or be cropped by the top edge. Similarly, show down to the shoulders/chest - no chin should be cropped "+
		"at the bottom. Think of it as a zoomed-out salon catalog photo. Variety: short, medium, long, bangs, no bangs, layered, "+
		"permed, straight, textured. Clean white background. No text or watermarks.", genderWord(gender))
}
