package llm

import "fmt"

const reportShape = `{
  "brand": "", "model": "", "vin": "", "fuelType": "", "queryDate": "",
  "rating": "number 0-5", "componentClass": "",
  "mileageAnomalies": "", "lastMileage": "", "lastMileageDate": "",
  "maintenanceHabits": "", "lastMaintenanceDate": "",
  "safetyChecks": {"accident": "", "fire": "", "flood": ""},
  "components": {
    "airbags": {"status": "", "note": ""}, "seatbelts": {"status": "", "note": ""},
    "axles": {"status": "", "note": ""}, "suspension": {"status": "", "note": ""},
    "steering": {"status": "", "note": ""}, "brakes": {"status": "", "note": ""},
    "airConditioner": {"status": "", "date": "", "description": ""}
  },
  "mileageHistory": [{"date": "", "mileage": "", "status": ""}],
  "mileageSummary": {"maxMileage": "", "anomalies": "", "estimatedCurrent": "", "avgYearly": ""},
  "maintenanceFrequency": "", "lastDealerVisit": "", "yearsWithoutDealer": "",
  "serviceHistory": {
    "period": "", "totalVisits": "", "repairs": "", "maintenance": "",
    "records": [{"date": "", "mileage": "", "description": "", "materials": [""]}]
  },
  "vehicleInfo": {
    "year": "", "engineVolume": "", "power": "", "transmission": "",
    "dimensions": {"length": "", "width": "", "height": ""}, "weight": "", "production": ""
  },
  "ownerInfo": {"ownerType": "", "registrationTime": "", "ownersCount": "", "usage": ""},
  "insuranceInfo": {"osago": "", "kasko": "", "claims": "", "maxDamage": ""},
  "conclusion": {
    "accidents": "", "bodyAnomalies": "", "insuranceRepairs": "",
    "componentProblems": "", "recommendation": ""
  }
}`

func systemPrompt(language string) string {
	if language == "" {
		language = "English"
	}
	return fmt.Sprintf(`You are an expert in vehicle history reports from Chinese services.
Extract ALL information from the screenshots and translate every text value into %s.
Reply with a single JSON object and nothing else, using exactly this structure:
%s
Use null for anything not present in the screenshots. Keep dates as YYYY-MM-DD and
mileage in kilometres. List every mileage and service record in chronological order.`, language, reportShape)
}

func userPrompt(language string, images int) string {
	if language == "" {
		language = "English"
	}
	return fmt.Sprintf("Analyze these %d screenshot(s) of a Chinese vehicle report, in order, and return the JSON "+
		"described above. Translate all Chinese text into %s.", images, language)
}
